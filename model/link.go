// Package model describes the JSON resources served by the stream processing
// server.
package model

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNoSelfLink is returned when a resource carries no "self" relation.
var ErrNoSelfLink = errors.New("resource has no self link")

// Link is a hypermedia relation of a resource.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Links is the link list every resource and list entry carries.
type Links []Link

// Self returns the server relative href of the "self" relation.
func (l Links) Self() (string, error) {
	for _, link := range l {
		if link.Rel == "self" && strings.TrimSpace(link.Href) != "" {
			return strings.TrimSpace(link.Href), nil
		}
	}
	return "", ErrNoSelfLink
}

// SelfLinks builds a link list holding a single self relation.
func SelfLinks(href string) Links {
	return Links{{Rel: "self", Href: href}}
}

// Envelope wraps every API response.
type Envelope struct {
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// UnmarshalJSON accepts the response code as number or string.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code    json.RawMessage `json:"code"`
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Code = strings.Trim(string(raw.Code), `"`)
	e.Status = raw.Status
	e.Message = raw.Message
	e.Data = raw.Data
	return nil
}

// OK reports whether the envelope signals success for method. Creation
// responses (201) are accepted for POST only.
func (e Envelope) OK(method string) bool {
	switch e.Code {
	case "200":
		return true
	case "201":
		return strings.EqualFold(method, "POST")
	default:
		return false
	}
}

// Describe returns the user facing error text of a failed envelope.
func (e Envelope) Describe() string {
	if strings.TrimSpace(e.Message) != "" {
		return "Error: " + e.Message
	}
	return "Error: " + e.Status + "."
}
