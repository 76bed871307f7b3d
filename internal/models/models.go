package models

import (
	"strings"
	"time"
)

// Message is one turn of the conversation log. Messages are never mutated
// once appended.
type Message struct {
	Text                  string    `json:"text"`
	IsUser                bool      `json:"is_user"`
	Timestamp             time.Time `json:"timestamp"`
	Suggestions           []string  `json:"suggestions,omitempty"`
	Emotion               string    `json:"emotion,omitempty"`
	Confidence            *float64  `json:"confidence,omitempty"`
	Topics                []string  `json:"topics,omitempty"`
	Comment               string    `json:"comment,omitempty"`
	RawJSON               string    `json:"raw_json,omitempty"`
	IsFinalRecommendation bool      `json:"is_final_recommendation"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(text string, at time.Time) Message {
	return Message{Text: text, IsUser: true, Timestamp: at}
}

// NewAssistantMessage creates an assistant turn from a parsed reply.
func NewAssistantMessage(reply StructuredReply, at time.Time) Message {
	return Message{
		Text:                  reply.Response,
		Timestamp:             at,
		Suggestions:           reply.Suggestions,
		Emotion:               reply.Emotion,
		Confidence:            reply.Confidence,
		Topics:                reply.Topics,
		Comment:               reply.Comment,
		RawJSON:               reply.RawJSON,
		IsFinalRecommendation: reply.IsFinalRecommendation,
	}
}

// StructuredReply is the parsed form of one assistant reply.
type StructuredReply struct {
	Response              string   `json:"response"`
	Comment               string   `json:"comment,omitempty"`
	Emotion               string   `json:"emotion,omitempty"`
	Confidence            *float64 `json:"confidence,omitempty"`
	Topics                []string `json:"topics,omitempty"`
	Suggestions           []string `json:"suggestions,omitempty"`
	IsFinalRecommendation bool     `json:"is_final_recommendation"`

	// RawJSON is the reply text with code fences removed, kept verbatim.
	RawJSON string `json:"-"`
}

// HasResponse reports whether the reply carries a non-blank response.
func (r StructuredReply) HasResponse() bool {
	return strings.TrimSpace(r.Response) != ""
}
