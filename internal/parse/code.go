package parse

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

// CodePayload is a decoded machine-readable payload: the raw string plus the
// candidate identifier and integrity hash derived from it, when present.
type CodePayload struct {
	Raw           string  `json:"raw,omitempty"`
	CandidateID   *string `json:"candidate_id"`
	CandidateHash *string `json:"candidate_hash"`
}

// Empty reports whether nothing was derived from the payload.
func (c CodePayload) Empty() bool {
	return c.CandidateID == nil && c.CandidateHash == nil
}

// Accepted key synonyms, tried in order.
var (
	idKeys   = []string{"certificate_id", "cert_id", "id"}
	hashKeys = []string{"file_hash", "hash"}
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9\-/]{6,}`)

// firstIDToken scans raw text for the first plausible identifier token: at
// least six identifier characters including at least one digit. The digit
// requirement keeps ordinary hyphenated words from masquerading as ids.
func firstIDToken(raw string) string {
	for _, tok := range tokenRe.FindAllString(raw, -1) {
		if strings.ContainsAny(tok, "0123456789") {
			return tok
		}
	}
	return ""
}

// Code derives a candidate identifier and hash from a raw payload string.
// Resolution order, first success wins: a self-describing key-value object,
// then a URL query string, then the first plausible identifier token in the
// raw text. Decode failures fall through to the next step; total failure
// yields an all-nil payload, never an error.
func Code(raw string) CodePayload {
	out := CodePayload{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		out.Raw = ""
		return out
	}

	if id, hash, ok := decodeObject(raw); ok {
		out.CandidateID, out.CandidateHash = id, hash
		return out
	}
	if id, hash, ok := decodeQuery(raw); ok {
		out.CandidateID, out.CandidateHash = id, hash
		return out
	}
	if tok := firstIDToken(raw); tok != "" {
		out.CandidateID = &tok
	}
	return out
}

func decodeObject(raw string) (id, hash *string, ok bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, nil, false
	}
	id = lookupString(obj, idKeys)
	hash = lookupString(obj, hashKeys)
	return id, hash, id != nil || hash != nil
}

func decodeQuery(raw string) (id, hash *string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.RawQuery == "" {
		return nil, nil, false
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, nil, false
	}
	obj := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			obj[strings.ToLower(k)] = vs[0]
		}
	}
	id = lookupString(obj, idKeys)
	hash = lookupString(obj, hashKeys)
	return id, hash, id != nil || hash != nil
}

func lookupString(obj map[string]any, keys []string) *string {
	for _, k := range keys {
		v, found := obj[k]
		if !found {
			continue
		}
		s, isStr := v.(string)
		if !isStr {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return &s
		}
	}
	return nil
}
