package inference

// DefaultMaxLength bounds a sample when the request does not.
const DefaultMaxLength = 64

// RequestOptions is the caller-facing form of Request; nil fields take
// defaults.
type RequestOptions struct {
	MaxLength   *int
	Temperature *float64
	TopK        *int
}

func ResolveRequest(opts RequestOptions) Request {
	req := Request{
		MaxLength:   DefaultMaxLength,
		Temperature: 1,
	}
	if opts.MaxLength != nil && *opts.MaxLength > 0 {
		req.MaxLength = *opts.MaxLength
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil && *opts.TopK > 0 {
		req.TopK = *opts.TopK
	}
	return req
}
