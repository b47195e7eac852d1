package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

// ErrUnknownShape is returned when the document is neither a full export, a chat
// list nor a single chat.
var ErrUnknownShape = errors.New("unexpected export structure: expected full export, chat list, or single chat")

// ChatError reports a chat that could not be decoded. The rest of the export is
// still readable after a ChatError.
type ChatError struct {
	Index int
	Err   error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat %d: %v", e.Index, e.Err)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// Chats streams the chats of an export one at a time, so only one chat is held in
// memory. Three shapes are accepted: {"chats":{"list":[...]}}, a bare array of
// chats, and a single chat object with a "messages" field.
//
// A *ChatError may be followed by more chats; any other error ends the sequence.
func Chats(r io.Reader) iter.Seq2[*Chat, error] {
	return func(yield func(*Chat, error) bool) {
		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err != nil {
			yield(nil, fmt.Errorf("read export: %w", err))
			return
		}

		s := &stream{dec: dec, yield: yield}
		switch tok {
		case json.Delim('['):
			s.array()
		case json.Delim('{'):
			s.object()
		default:
			yield(nil, ErrUnknownShape)
		}
	}
}

type stream struct {
	dec   *json.Decoder
	yield func(*Chat, error) bool
	index int
	done  bool
}

func (s *stream) fail(err error) {
	if !s.done {
		s.done = true
		s.yield(nil, err)
	}
}

func (s *stream) emit(raw json.RawMessage) {
	idx := s.index
	s.index++
	chat, err := parseChat(raw)
	if err != nil {
		if !s.yield(nil, &ChatError{Index: idx, Err: err}) {
			s.done = true
		}
		return
	}
	if !s.yield(chat, nil) {
		s.done = true
	}
}

// array streams the elements of an array whose opening bracket was consumed.
func (s *stream) array() {
	for !s.done && s.dec.More() {
		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			s.fail(fmt.Errorf("decode chat %d: %w", s.index, err))
			return
		}
		s.emit(raw)
	}
	if s.done {
		return
	}
	if _, err := s.dec.Token(); err != nil {
		s.fail(fmt.Errorf("read export: %w", err))
	}
}

// object handles a top-level object: either a full export holding chats.list, or
// a single chat whose fields are collected and decoded at the end.
func (s *stream) object() {
	fields := make(map[string]json.RawMessage)
	sawChats := false

	for !s.done && s.dec.More() {
		key, err := s.key()
		if err != nil {
			s.fail(err)
			return
		}
		if key == "chats" {
			sawChats = true
			s.chats()
			continue
		}
		var v json.RawMessage
		if err := s.dec.Decode(&v); err != nil {
			s.fail(fmt.Errorf("decode %q: %w", key, err))
			return
		}
		fields[key] = v
	}
	if s.done || sawChats {
		return
	}

	if _, ok := fields["messages"]; !ok {
		s.fail(ErrUnknownShape)
		return
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		s.fail(fmt.Errorf("reassemble chat: %w", err))
		return
	}
	s.emit(raw)
}

// chats walks the value of the "chats" key looking for its "list" array.
func (s *stream) chats() {
	tok, err := s.dec.Token()
	if err != nil {
		s.fail(fmt.Errorf("read chats: %w", err))
		return
	}
	if tok != json.Delim('{') {
		s.fail(ErrUnknownShape)
		return
	}
	for !s.done && s.dec.More() {
		key, err := s.key()
		if err != nil {
			s.fail(err)
			return
		}
		if key != "list" {
			var skip json.RawMessage
			if err := s.dec.Decode(&skip); err != nil {
				s.fail(fmt.Errorf("decode chats.%s: %w", key, err))
				return
			}
			continue
		}
		tok, err := s.dec.Token()
		if err != nil {
			s.fail(fmt.Errorf("read chats.list: %w", err))
			return
		}
		if tok != json.Delim('[') {
			s.fail(ErrUnknownShape)
			return
		}
		s.array()
	}
	if s.done {
		return
	}
	if _, err := s.dec.Token(); err != nil {
		s.fail(fmt.Errorf("read chats: %w", err))
	}
}

func (s *stream) key() (string, error) {
	tok, err := s.dec.Token()
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("read key: unexpected token %v", tok)
	}
	return key, nil
}

func parseChat(raw json.RawMessage) (*Chat, error) {
	var ec exportChat
	if err := json.Unmarshal(raw, &ec); err != nil {
		return nil, fmt.Errorf("parse chat: %w", err)
	}
	return &Chat{
		Contact: dataset.Contact{
			ID:   ec.ID,
			Name: ec.Name,
			Type: dataset.ContactType(ec.Type),
		},
		messages: ec.Messages,
		raw:      raw,
	}, nil
}
