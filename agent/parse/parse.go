// Package parse turns short free-text model replies into named fields.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedReply is returned when a reply does not have the expected shape.
var ErrMalformedReply = errors.New("malformed reply")

const (
	FieldTopic   = "topic"
	FieldKeyword = "keyword"
)

// TopicKeywordFields are the fields of a classification reply, in order.
var TopicKeywordFields = []string{FieldTopic, FieldKeyword}

var nonLetters = regexp.MustCompile(`[^a-zA-Z]`)

// Policy decides how token counts that differ from the field count are handled.
type Policy string

const (
	// Strict fails unless the reply has exactly one token per field.
	Strict Policy = "strict"
	// Lenient maps leading tokens to fields, dropping extras and leaving
	// missing trailing fields absent.
	Lenient Policy = "lenient"
)

var Policies = []Policy{Strict, Lenient}

func (p Policy) String() string {
	return string(p)
}

// PolicyFromString returns the matching policy, or "" if s is not one.
func PolicyFromString(s string) Policy {
	switch strings.ToLower(s) {
	case Strict.String():
		return Strict
	case Lenient.String():
		return Lenient
	default:
		return ""
	}
}

// Reply maps field names to cleaned tokens. Absent fields have no key.
type Reply map[string]string

// Get returns the value of field and whether it was present.
func (r Reply) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Topic returns the topic field or "".
func (r Reply) Topic() string {
	return r[FieldTopic]
}

// Keyword returns the keyword field or "".
func (r Reply) Keyword() string {
	return r[FieldKeyword]
}

// Fields splits raw on whitespace and assigns tokens to names in order. Every
// token is stripped of characters outside A-Z and a-z and lowercased. A reply
// with no tokens is malformed under either policy.
func Fields(raw string, names []string, policy Policy) (Reply, error) {
	if len(names) == 0 {
		return nil, errors.New("no field names")
	}
	words := strings.Fields(raw)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	switch policy {
	case Strict:
		if len(words) != len(names) {
			return nil, fmt.Errorf("%w: want %d words, got %d", ErrMalformedReply, len(names), len(words))
		}
	case Lenient:
		if len(words) > len(names) {
			words = words[:len(names)]
		}
	default:
		return nil, fmt.Errorf("unknown parse policy %q", policy)
	}

	reply := make(Reply, len(words))
	for i, word := range words {
		token := clean(word)
		if token == "" {
			if policy == Strict {
				return nil, fmt.Errorf("%w: %s has no letters", ErrMalformedReply, names[i])
			}
			continue
		}
		reply[names[i]] = token
	}
	if len(reply) == 0 {
		return nil, fmt.Errorf("%w: no usable words", ErrMalformedReply)
	}
	return reply, nil
}

// TopicKeyword parses a classification reply.
func TopicKeyword(raw string, policy Policy) (Reply, error) {
	return Fields(raw, TopicKeywordFields, policy)
}

func clean(word string) string {
	return strings.ToLower(nonLetters.ReplaceAllString(word, ""))
}
