package speech

import (
	"encoding/json"
	"strconv"
)

// Response is the wire shape of a recognition reply. Every property value is
// a string on the wire, including confidence.
type Response struct {
	Version string          `json:"version,omitempty"`
	Header  ResponseHeader  `json:"header"`
	Results []ResponseMatch `json:"results,omitempty"`
}

type ResponseHeader struct {
	Status     string            `json:"status"`
	Properties map[string]string `json:"properties"`
}

type ResponseMatch struct {
	Name       string `json:"name"`
	Confidence string `json:"confidence"`
}

// RequestID returns the request id echoed back by the backend, if any.
func (r *Response) RequestID() string {
	return r.Header.Properties["requestid"]
}

// NoSpeech reports whether the backend processed the audio but found nothing
// to transcribe.
func (r *Response) NoSpeech() bool {
	return r.Header.Status == "error" && r.Header.Properties["NOSPEECH"] == "1"
}

// TopConfidence parses the confidence of the first result. The second return
// is false when there is no result or the value does not parse.
func (r *Response) TopConfidence() (float64, bool) {
	if len(r.Results) == 0 {
		return 0, false
	}
	confidence, err := strconv.ParseFloat(r.Results[0].Confidence, 64)
	if err != nil {
		return 0, false
	}
	return confidence, true
}

// FailureMarker synthesizes an error-shaped artifact for a segment whose
// recognition attempts were all exhausted, so the coalescing pass can treat
// it like any other failed segment.
func FailureMarker(requestID string) []byte {
	marker := Response{
		Header: ResponseHeader{
			Status:     "error",
			Properties: map[string]string{"requestid": requestID},
		},
	}
	body, err := json.Marshal(marker)
	if err != nil {
		// Response is a plain struct; marshaling cannot fail.
		panic(err)
	}
	return body
}
