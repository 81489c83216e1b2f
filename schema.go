package msgframe

// Direction identifies which side of the exchange a message travels.
type Direction int

const (
	// Request flows from client to server.
	Request Direction = iota
	// Response flows from server to client.
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// Role selects which direction a connection writes and which it reads.
type Role int

const (
	// ServerRole reads requests and writes responses.
	ServerRole Role = iota
	// ClientRole writes requests and reads responses.
	ClientRole
)

// Outbound returns the direction of messages written in this role.
func (r Role) Outbound() Direction {
	if r == ServerRole {
		return Response
	}
	return Request
}

// Inbound returns the direction of messages read in this role.
func (r Role) Inbound() Direction {
	if r == ServerRole {
		return Request
	}
	return Response
}

func (r Role) String() string {
	if r == ServerRole {
		return "server"
	}
	return "client"
}

// MessageDefaults are the declared metadata values of outgoing messages.
type MessageDefaults struct {
	IsBigEndian     bool
	ContentType     string
	ContentEncoding string
}

// Metadata returns the header for a payload of the given length.
func (d MessageDefaults) Metadata(contentLength int) Metadata {
	return Metadata{
		IsBigEndian:     d.IsBigEndian,
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		ContentLength:   contentLength,
	}
}

// Schema describes the messages of an application protocol.
// It supplies the metadata declared on outgoing messages and the content
// sent when the application supplies none.
type Schema interface {
	// Defaults returns the metadata values for messages in direction d.
	Defaults(d Direction) MessageDefaults
	// DefaultContent returns the content used when a message has none.
	DefaultContent(d Direction) Content
}

// Describer is implemented by schemas that document the structure of their
// content, for example as a list of field names and types.
type Describer interface {
	Definition(d Direction) string
}

// NoDefinition is reported for schemas that do not describe their content.
const NoDefinition = "no definition"

// Describe returns the content definition of s for direction d.
func Describe(s Schema, d Direction) string {
	if ds, ok := s.(Describer); ok {
		if def := ds.Definition(d); def != "" {
			return def
		}
	}
	return NoDefinition
}

// DefaultSchema is used when no Schema option is given.
var DefaultSchema Schema = defaultSchema{}

type defaultSchema struct{}

func (defaultSchema) Defaults(Direction) MessageDefaults {
	return MessageDefaults{
		IsBigEndian:     false,
		ContentType:     DefaultContentType,
		ContentEncoding: DefaultEncoding,
	}
}

func (defaultSchema) DefaultContent(Direction) Content {
	return Content{"content": "content"}
}

// StaticSchema is a Schema with fixed per-direction values.
type StaticSchema struct {
	RequestDefaults  MessageDefaults
	ResponseDefaults MessageDefaults
	RequestContent   Content
	ResponseContent  Content

	// Human readable content structure, reported by Describe.
	RequestDefinition  string
	ResponseDefinition string
}

func (s StaticSchema) Defaults(d Direction) MessageDefaults {
	if d == Response {
		return s.ResponseDefaults
	}
	return s.RequestDefaults
}

func (s StaticSchema) DefaultContent(d Direction) Content {
	if d == Response {
		return s.ResponseContent
	}
	return s.RequestContent
}

func (s StaticSchema) Definition(d Direction) string {
	if d == Response {
		return s.ResponseDefinition
	}
	return s.RequestDefinition
}
