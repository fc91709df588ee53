package core

import (
	"encoding/base64"
	"strings"
)

// actionsMarker is replaced by the decoded contract body.
const actionsMarker = "###ACTIONS###"

// contractTemplate is the dispatch wrapper every contract body is spliced
// into. The body populates actions; the engine calls execute exactly once.
// Regular expressions are disabled. The text is part of the content hash of
// every deployed contract and must never change.
const contractTemplate = `
    RegExp.prototype.constructor = function () { };
    RegExp.prototype.exec = function () { };
    RegExp.prototype.test = function () { };

    let actions = {};

    ###ACTIONS###

    async function execute(action, payload) {
      try {
        if (action && typeof action === 'string' && typeof actions[action] === 'function') {
          if (action !== 'createSSC') {
            actions.createSSC = null;
          }

          await actions[action](payload);
          done(null);
        } else {
          done('invalid action');
        }
      } catch (error) {
        done(error);
      }
    }
  `

// decodeBody decodes a base64 contract body. Padding is optional.
func decodeBody(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if raw, err := base64.StdEncoding.DecodeString(code); err == nil {
		return string(raw), true
	}
	if raw, err := base64.RawStdEncoding.DecodeString(code); err == nil {
		return string(raw), true
	}
	return "", false
}

// wrapBody splices body into the dispatch template. The body is inserted
// with JavaScript String.prototype.replace semantics, so "$$", "$&", "$`"
// and "$'" in the body expand the way they always have; deployed code
// hashes depend on it.
func wrapBody(body string) string {
	at := strings.Index(contractTemplate, actionsMarker)
	before := contractTemplate[:at]
	after := contractTemplate[at+len(actionsMarker):]

	var b strings.Builder
	b.Grow(len(contractTemplate) + len(body))
	b.WriteString(before)
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '$' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		switch body[i+1] {
		case '$':
			b.WriteByte('$')
		case '&':
			b.WriteString(actionsMarker)
		case '`':
			b.WriteString(before)
		case '\'':
			b.WriteString(after)
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	b.WriteString(after)
	return b.String()
}
