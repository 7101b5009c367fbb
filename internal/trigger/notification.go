// Package trigger binds the engine to the document-change notifications the
// trigger substrate delivers. Notifications are carried through a Redis reliable
// queue and handled by a pool of consumers; delivery is at least once.
package trigger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Kind is the document event a notification reports.
type Kind string

const (
	// KindSubjectCreated fires once per new ghost report document.
	KindSubjectCreated Kind = "subject.created"
	// KindSubjectVoteWritten fires on create, update or delete of ghost_reports/{reportId}/votes/{voterId}.
	KindSubjectVoteWritten Kind = "subject.vote.written"
	// KindPostVoteWritten fires on create, update or delete of network_posts/{postId}/votes/{userId}.
	KindPostVoteWritten Kind = "post.vote.written"
)

// Valid reports whether the kind is one the dispatcher handles.
func (k Kind) Valid() bool {
	switch k {
	case KindSubjectCreated, KindSubjectVoteWritten, KindPostVoteWritten:
		return true
	default:
		return false
	}
}

// Path parameter names.
const (
	ParamReportID = "reportId"
	ParamVoterID  = "voterId"
	ParamPostID   = "postId"
	ParamUserID   = "userId"
)

var (
	// ErrUnknownKind is returned for notifications this worker cannot handle.
	ErrUnknownKind = errors.New("unknown notification kind")
	// ErrMissingParam is returned when a path parameter the kind needs is absent.
	ErrMissingParam = errors.New("missing path parameter")
)

// Notification is the envelope a document change arrives in. Before and After
// hold the document bodies; either may be empty when the document did not exist.
type Notification struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Params     map[string]string `json:"params"`
	Before     json.RawMessage   `json:"before,omitempty"`
	After      json.RawMessage   `json:"after,omitempty"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
	LastError  string            `json:"lastError,omitempty"`
}

// Param returns a path parameter or ErrMissingParam.
func (n *Notification) Param(name string) (string, error) {
	v := n.Params[name]
	if v == "" {
		return "", &ParamError{Kind: n.Kind, Name: name}
	}
	return v, nil
}

// ParamError names the missing parameter.
type ParamError struct {
	Kind Kind
	Name string
}

func (e *ParamError) Error() string {
	return "missing path parameter " + e.Name + " for " + string(e.Kind)
}

func (e *ParamError) Unwrap() error {
	return ErrMissingParam
}

// IsPermanent reports whether retrying the notification can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrMissingParam)
}

// ReadNotifications decodes one notification per line. Blank lines and lines
// starting with # are skipped.
func ReadNotifications(r io.Reader) ([]*Notification, error) {
	var notifications []*Notification

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var n Notification
		if err := sonic.UnmarshalString(line, &n); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if !n.Kind.Valid() {
			return nil, fmt.Errorf("line %d: %w: %q", lineNum, ErrUnknownKind, n.Kind)
		}

		notifications = append(notifications, &n)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	return notifications, nil
}
