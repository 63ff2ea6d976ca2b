package codec

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Method is an HTTP request method. It travels as its uppercase name and
// only the standard methods decode.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodDelete  Method = http.MethodDelete
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodConnect Method = http.MethodConnect
	MethodPatch   Method = http.MethodPatch
	MethodTrace   Method = http.MethodTrace
)

var knownMethods = map[Method]bool{
	MethodGet: true, MethodPost: true, MethodPut: true, MethodDelete: true, MethodHead: true,
	MethodOptions: true, MethodConnect: true, MethodPatch: true, MethodTrace: true,
}

func (m Method) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(m))
}

func (m *Method) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	if !knownMethods[Method(s)] {
		return fmt.Errorf("unknown HTTP method %q", s)
	}
	*m = Method(s)
	return nil
}

// Scheme is a URI scheme, "http" or "https", in lowercase.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

func (s Scheme) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(s))
}

func (s *Scheme) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeString()
	if err != nil {
		return err
	}
	switch Scheme(v) {
	case SchemeHTTP, SchemeHTTPS:
		*s = Scheme(v)
		return nil
	}
	return fmt.Errorf("unknown URI scheme %q", v)
}

// URI is a URL that travels as its string form.
type URI struct {
	url.URL
}

// ParseURI parses s into a URI.
func ParseURI(s string) (URI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, err
	}
	return URI{URL: *u}, nil
}

func (u URI) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(u.URL.String())
}

func (u *URI) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseURI(s)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", s, err)
	}
	*u = parsed
	return nil
}

// Header is a set of HTTP headers. It travels as a map from lowercase
// header name to the value bytes; several values of one header are joined
// with ", ".
type Header http.Header

func (h Header) EncodeMsgpack(enc *msgpack.Encoder) error {
	if h == nil {
		return enc.EncodeNil()
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := enc.EncodeMapLen(len(names)); err != nil {
		return err
	}
	for _, name := range names {
		if err := enc.EncodeString(strings.ToLower(name)); err != nil {
			return err
		}
		if err := enc.EncodeBytes([]byte(strings.Join(h[name], ", "))); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n == -1 {
		*h = nil
		return nil
	}
	out := make(Header, n)
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if !validHeaderName(name) {
			return fmt.Errorf("unable to parse header %q", name)
		}
		value, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		http.Header(out).Set(name, string(value))
	}
	*h = out
	return nil
}

// validHeaderName reports whether name is a non-empty RFC 7230 token.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
