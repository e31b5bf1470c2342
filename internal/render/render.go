// Package render substitutes contact and job placeholders into message bodies.
//
// Placeholders use the double-brace form {{token}}; whitespace inside the
// braces is ignored. Supported tokens:
//
//	firstName    contact first name
//	lastName     contact last name
//	fullName     contact first and last name
//	jobName      job name
//	jobLocation  job location
//	jobDate      job start date, e.g. "Tue, Mar 3 2026", in the job timezone
//	jobTime      job start time, e.g. "9:30 AM", in the job timezone
//	jobEndTime   job end time, empty when the job has no end
//	jobNotes     job notes
//
// Anything else, including unknown tokens, is copied verbatim.
package render

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
)

const (
	dateLayout = "Mon, Jan 2 2006"
	timeLayout = "3:04 PM"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9]*)\s*\}\}`)

type resolver func(contact domain.Contact, job domain.Job) string

var resolvers = map[string]resolver{
	"firstName": func(c domain.Contact, _ domain.Job) string { return c.FirstName },
	"lastName":  func(c domain.Contact, _ domain.Job) string { return c.LastName },
	"fullName":  func(c domain.Contact, _ domain.Job) string { return c.FullName() },
	"jobName":   func(_ domain.Contact, j domain.Job) string { return j.Name },
	"jobLocation": func(_ domain.Contact, j domain.Job) string {
		return j.Location
	},
	"jobDate": func(_ domain.Contact, j domain.Job) string {
		if j.StartsAt.IsZero() {
			return ""
		}
		return j.StartsAt.In(j.TimeLocation()).Format(dateLayout)
	},
	"jobTime": func(_ domain.Contact, j domain.Job) string {
		if j.StartsAt.IsZero() {
			return ""
		}
		return j.StartsAt.In(j.TimeLocation()).Format(timeLayout)
	},
	"jobEndTime": func(_ domain.Contact, j domain.Job) string {
		if j.EndsAt == nil {
			return ""
		}
		return j.EndsAt.In(j.TimeLocation()).Format(timeLayout)
	},
	"jobNotes": func(_ domain.Contact, j domain.Job) string { return j.Notes },
}

// Render replaces every supported placeholder in body.
func Render(body string, contact domain.Contact, job domain.Job) string {
	if !strings.Contains(body, "{{") {
		return body
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		resolve, ok := resolvers[name]
		if !ok {
			return match
		}
		return resolve(contact, job)
	})
}

// Tokens lists the supported placeholder names in sorted order.
func Tokens() []string {
	names := make([]string, 0, len(resolvers))
	for name := range resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownTokens returns placeholders in body that Render would leave untouched.
func UnknownTokens(body string) []string {
	seen := make(map[string]struct{})
	unknown := make([]string, 0)
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := resolvers[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		unknown = append(unknown, name)
	}
	return unknown
}
