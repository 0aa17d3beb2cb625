package errhandler

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// unknownErrorMessage is surfaced when an error carries no usable message.
// Never show the user an empty string.
const unknownErrorMessage = "An unknown error occurred."

// Coder is implemented by errors that carry an application error code.
type Coder interface {
	Code() string
}

// Classifier maps raw error values plus context to a display message and
// severity. Pure and synchronous: no I/O, no clock reads.
//
// Custom message resolution order, first match wins:
//  1. exact match on the error's type name against Messages
//  2. exact match on the error's code (Coder or Metadata.Code)
//  3. pattern keys ("/.../"), tested against the error message
//  4. the "default" entry
//  5. generic formatting of the raw message
type Classifier struct {
	messages map[string]string

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp // compiled pattern-key cache
}

// NewClassifier creates a classifier with the given message map. Keys are
// error type names, error codes, "/pattern/" regexes, or "default".
func NewClassifier(messages map[string]string) *Classifier {
	if messages == nil {
		messages = map[string]string{}
	}
	return &Classifier{
		messages: messages,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Classification is the result of classifying one error.
type Classification struct {
	DisplayMessage string
	Severity       Severity
}

// Classify resolves the display message and severity for an error.
func (c *Classifier) Classify(err error, meta Metadata) Classification {
	return Classification{
		DisplayMessage: c.displayMessage(err, meta),
		Severity:       meta.Severity(),
	}
}

func (c *Classifier) displayMessage(err error, meta Metadata) string {
	if err == nil {
		if msg, ok := c.messages["default"]; ok {
			return msg
		}
		return unknownErrorMessage
	}

	// 1. Exact type name match.
	if msg, ok := c.messages[typeName(err)]; ok {
		return msg
	}

	// 2. Exact code match.
	if code := errorCode(err, meta); code != "" {
		if msg, ok := c.messages[code]; ok {
			return msg
		}
	}

	// 3. Pattern keys tested against the raw message.
	raw := err.Error()
	for key, msg := range c.messages {
		if len(key) < 2 || !strings.HasPrefix(key, "/") || !strings.HasSuffix(key, "/") {
			continue
		}
		if re := c.compile(key); re != nil && re.MatchString(raw) {
			return msg
		}
	}

	// 4. Configured default.
	if msg, ok := c.messages["default"]; ok {
		return msg
	}

	// 5. Generic formatting.
	return FormatMessage(raw)
}

// compile returns the cached regexp for a "/pattern/" key, or nil when the
// pattern does not compile.
func (c *Classifier) compile(key string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.patterns[key]; ok {
		return re
	}
	re, err := regexp.Compile(key[1 : len(key)-1])
	if err != nil {
		re = nil
	}
	c.patterns[key] = re
	return re
}

// typeName returns the error's concrete type name without package path
// or pointer marker, e.g. "*net.OpError" -> "OpError".
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// errorCode extracts an application error code from the error value or
// the caller metadata.
func errorCode(err error, meta Metadata) string {
	if coder, ok := err.(Coder); ok {
		if code := coder.Code(); code != "" {
			return code
		}
	}
	return meta.Code
}

// FormatMessage produces a generic user-facing message from a raw error
// string: strips leading "Error:"/"Exception:"/"Uncaught" prefixes and
// capitalizes the first letter.
func FormatMessage(raw string) string {
	msg := strings.TrimSpace(raw)

	for changed := true; changed; {
		changed = false
		for _, prefix := range []string{"Error:", "Exception:", "Uncaught"} {
			trimmed := strings.TrimSpace(strings.TrimPrefix(msg, prefix))
			if trimmed != msg {
				msg = trimmed
				changed = true
			}
		}
	}

	if msg == "" {
		return unknownErrorMessage
	}

	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}

// normalizedTypeName is a convenience used in logs and metrics labels.
func normalizedTypeName(err error) string {
	if err == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", err)
}
