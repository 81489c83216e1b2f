package msgframe

// Frame is one complete message: the metadata header and the decoded payload.
type Frame struct {
	Metadata Metadata
	Content  Content
}

// EncodeFrame returns the wire bytes for c described by md.
// md.ContentLength is ignored and computed from the encoded payload.
func EncodeFrame(md Metadata, c Content) ([]byte, error) {
	return AppendFrame(nil, md, c)
}

// AppendFrame appends the wire bytes of a frame to dst.
// On error dst is returned unchanged.
func AppendFrame(dst []byte, md Metadata, c Content) ([]byte, error) {
	if md.ContentType == "" {
		md.ContentType = DefaultContentType
	}
	if md.ContentEncoding == "" {
		md.ContentEncoding = DefaultEncoding
	}

	payload, err := EncodeContent(c, md.ContentType, md.ContentEncoding)
	if err != nil {
		return dst, err
	}
	md.ContentLength = len(payload)

	header, err := EncodeMetadata(md, MetadataEncoding)
	if err != nil {
		return dst, err
	}

	prefix, err := EncodeLength(len(header))
	if err != nil {
		return dst, err
	}

	dst = append(dst, prefix...)
	dst = append(dst, header...)
	dst = append(dst, payload...)
	return dst, nil
}
