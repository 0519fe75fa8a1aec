package geonetwork

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// oneOrMany decodes a JSON value that is either a single T or a list of T.
// GeoNetwork collapses one-element lists into plain values.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}
	if b[0] == '[' {
		var list []T
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*o = oneOrMany[T]{one}
	return nil
}

// count accepts both 12 and "12".
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*c = count(n)
	return nil
}

type topicCat struct {
	Count count  `json:"@count"`
	Name  string `json:"@name"`
}

type summaryResponse struct {
	Summary struct {
		TopicCats oneOrMany[topicCat] `json:"topicCats"`
	} `json:"summary"`
}

type record struct {
	Identifier string            `json:"identifier"`
	Title      string            `json:"title"`
	Abstract   string            `json:"abstract"`
	TopicCat   oneOrMany[string] `json:"topicCat"`
	Image      oneOrMany[string] `json:"image"`
	Link       oneOrMany[string] `json:"link"`
	Info       struct {
		UUID string `json:"uuid"`
	} `json:"geonet:info"`
}

type searchResponse struct {
	Metadata oneOrMany[record] `json:"metadata"`
}
