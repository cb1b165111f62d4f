package fakemoz

import (
	"fmt"
	"strings"
)

// Fixture identifiers shared by package tests.
const (
	FixedBugID    = 12345
	FixedAssignee = "jefft@formerly-netscape.com.tld"

	LandingsBugID  = 538189
	InboundLanding = "42c54c7cb4a3"
	CentralLanding = "3c8f1f5fd3a2"
	BetaLanding    = "1d02edaa92bc"

	RiskBugID    = 547914
	RiskAssignee = "philringnalda@gmail.com"
	RiskNode     = "2f5b5c4d2a07e9b1c3d4e5f60718293a4b5c6d7e"
	RiskPushDate = 1270461600 // 2010-04-05T10:00:00Z

	LicensePath  = "LICENSE"
	LicenseLines = 320
)

// Seed loads the canned bugs, revisions and file logs the end-to-end tests
// are written against.
func (s *Server) Seed() {
	s.seedFixedBug()
	s.seedDupChains()
	s.seedLandings()
	s.seedRiskBug()
}

func (s *Server) seedFixedBug() {
	s.AddBug(map[string]any{
		"id":               FixedBugID,
		"summary":          "Mail window opens slowly",
		"status":           "VERIFIED",
		"resolution":       "FIXED",
		"product":          "MailNews Core",
		"component":        "Backend",
		"assigned_to":      FixedAssignee,
		"creator":          "someone@formerly-netscape.com.tld",
		"creation_time":    "1999-08-03T21:10:00Z",
		"last_change_time": "2011-03-01T12:00:00Z",
	})
}

func (s *Server) seedDupChains() {
	dup := func(id, target int) map[string]any {
		return map[string]any{"id": id, "status": "RESOLVED", "resolution": "DUPLICATE", "dupe_of": target}
	}

	s.AddBug(dup(1244129, 1240533))
	s.AddBug(map[string]any{"id": 1240533, "status": "RESOLVED", "resolution": "FIXED", "dupe_of": nil})
	s.AddBug(map[string]any{"id": 890156, "status": "NEW", "resolution": "", "dupe_of": nil})
	s.AddBug(dup(784349, 784346))
	s.AddBug(dup(784346, 784345))
	s.AddBug(map[string]any{"id": 784345, "status": "RESOLVED", "resolution": "WORKSFORME", "dupe_of": nil})
}

func (s *Server) seedLandings() {
	s.AddBug(map[string]any{"id": LandingsBugID, "status": "RESOLVED", "resolution": "FIXED"})
	s.AddComments(LandingsBugID,
		comment(1, "dbaron@dbaron.org", "2010-01-05T10:00:00Z", "Patch attached, asking for review."),
		comment(2, "dbaron@dbaron.org", "2010-01-08T10:00:00Z",
			"https://hg.mozilla.org/integration/mozilla-inbound/rev/"+InboundLanding),
		comment(3, "philringnalda@gmail.com", "2010-01-09T10:00:00Z",
			"Merged: https://hg.mozilla.org/mozilla-central/rev/"+CentralLanding),
		comment(4, "dbaron@dbaron.org", "2010-01-12T10:00:00Z",
			"Landed on beta: https://hg.mozilla.org/releases/mozilla-beta/rev/"+BetaLanding),
	)
}

func (s *Server) seedRiskBug() {
	s.AddUser(map[string]any{"id": 1, "name": "shaver@mozilla.org", "real_name": "Mike Shaver (:shaver)"})
	s.AddUser(map[string]any{"id": 2, "name": "gerv@mozilla.org", "real_name": "Gervase Markham [:gerv]"})
	s.AddUser(map[string]any{"id": 3, "name": RiskAssignee, "real_name": "Phil Ringnalda (:philor)"})

	s.AddBug(map[string]any{
		"id":               RiskBugID,
		"summary":          "Update the tri-license boilerplate in LICENSE",
		"status":           "RESOLVED",
		"resolution":       "FIXED",
		"product":          "Core",
		"component":        "General",
		"assigned_to":      RiskAssignee,
		"creator":          RiskAssignee,
		"blocks":           []int{547000},
		"depends_on":       []int{},
		"keywords":         []string{},
		"creation_time":    "2010-02-22T18:00:00Z",
		"last_change_time": "2010-04-05T10:30:00Z",
		"cc":               []string{"gerv@mozilla.org", "shaver@mozilla.org"},
		"cc_detail": []map[string]any{
			{"id": 1, "name": "shaver@mozilla.org", "real_name": "Mike Shaver (:shaver)", "email": "shaver@mozilla.org"},
			{"id": 2, "name": "gerv@mozilla.org", "real_name": "Gervase Markham [:gerv]", "email": "gerv@mozilla.org"},
		},
		"flags": []map[string]any{},
	})

	s.AddHistory(RiskBugID,
		map[string]any{
			"who":  RiskAssignee,
			"when": "2010-02-23T09:00:00Z",
			"changes": []map[string]any{
				{"field_name": "assigned_to", "removed": "nobody@mozilla.org", "added": RiskAssignee},
				{"field_name": "status", "removed": "NEW", "added": "ASSIGNED"},
			},
		},
		map[string]any{
			"who":  RiskAssignee,
			"when": "2010-04-05T10:30:00Z",
			"changes": []map[string]any{
				{"field_name": "status", "removed": "ASSIGNED", "added": "RESOLVED"},
				{"field_name": "resolution", "removed": "", "added": "FIXED"},
			},
		},
	)

	texts := []string{
		"The LICENSE file still carries the old boilerplate.",
		"Created attachment 428370\nUpdate LICENSE",
		"Comment on attachment 428370\nLooks right to me.",
		"Comment on attachment 428370\nr=me too.",
		"Is this ready to land?",
		"Yes, once the tree reopens.",
		"Tree is still closed.",
		"Will land tomorrow.",
		"http://hg.mozilla.org/mozilla-central/rev/" + RiskNode[:12],
		"Thanks!",
		"Verified the new text on tip.",
	}

	comments := make([]map[string]any, 0, len(texts))
	for idx, text := range texts {
		comments = append(comments, comment(idx, RiskAssignee, fmt.Sprintf("2010-03-%02dT10:00:00Z", idx+1), text))
	}

	s.AddComments(RiskBugID, comments...)

	s.AddAttachments(RiskBugID, map[string]any{
		"id":               428370,
		"file_name":        "license.diff",
		"summary":          "Update LICENSE",
		"content_type":     "text/plain",
		"is_patch":         true,
		"is_obsolete":      false,
		"creator":          RiskAssignee,
		"creation_time":    "2010-02-23T10:00:00Z",
		"last_change_time": "2010-02-24T10:00:00Z",
		"size":             4096,
		"flags": []map[string]any{
			{"id": 1, "name": "review", "status": "+", "setter": "shaver@mozilla.org"},
			{"id": 2, "name": "review", "status": "+", "setter": "gerv@mozilla.org"},
		},
	})

	s.AddRevision("mozilla-central", map[string]any{
		"node":     RiskNode,
		"date":     []any{RiskPushDate - 3600, 0},
		"desc":     "Bug 547914 - Update the tri-license boilerplate in LICENSE, r=shaver, r=gerv",
		"user":     "Phil Ringnalda <philringnalda@gmail.com>",
		"branch":   "default",
		"parents":  []string{"0a1b2c3d4e5f60718293a4b5c6d7e8f901234567"},
		"pushid":   9001,
		"pushdate": []any{RiskPushDate, 0},
		"pushuser": RiskAssignee,
		"files":    []string{LicensePath},
	})
	s.AddRawRevision("mozilla-central", RiskNode, LicenseDiff(LicenseLines))

	s.AddFileLog("mozilla-central", LicensePath,
		map[string]any{
			"node":     RiskNode,
			"desc":     "Bug 547914 - Update the tri-license boilerplate in LICENSE, r=shaver, r=gerv",
			"user":     "Phil Ringnalda <philringnalda@gmail.com>",
			"date":     []any{RiskPushDate - 3600, 0},
			"pushdate": []any{RiskPushDate, 0},
		},
		map[string]any{
			"node":     "5d8e9f0a1b2c3d4e5f60718293a4b5c6d7e8f901",
			"desc":     "Bug 385312 - Relicense LICENSE under the MPL/GPL/LGPL tri-license. r=gerv",
			"user":     "Gervase Markham <gerv@mozilla.org>",
			"date":     []any{1199181600, 0},
			"pushdate": []any{1199185200, 0},
		},
		map[string]any{
			"node":     "9a8b7c6d5e4f30211203f4e5d6c7b8a990817263",
			"desc":     "Initial import",
			"user":     "hg@mozilla.com",
			"date":     []any{1174000000, 0},
			"pushdate": []any{1174000000, 0},
		},
	)
}

func comment(count int, creator, when, text string) map[string]any {
	return map[string]any{
		"id":            count + 1000,
		"count":         count,
		"creator":       creator,
		"time":          when,
		"creation_time": when,
		"text":          text,
		"is_private":    false,
	}
}

// LicenseDiff renders an hg raw-rev that rewrites every line of LICENSE.
func LicenseDiff(lines int) string {
	var b strings.Builder

	b.WriteString("# HG changeset patch\n")
	b.WriteString("# User Phil Ringnalda <philringnalda@gmail.com>\n")
	b.WriteString("Bug 547914 - Update the tri-license boilerplate in LICENSE, r=shaver, r=gerv\n\n")
	b.WriteString("diff --git a/LICENSE b/LICENSE\n")
	b.WriteString("--- a/LICENSE\n")
	b.WriteString("+++ b/LICENSE\n")
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", lines, lines)

	for i := range lines {
		fmt.Fprintf(&b, "-old license line %d\n", i)
	}

	for i := range lines {
		fmt.Fprintf(&b, "+new license line %d\n", i)
	}

	return b.String()
}

// SyntheticFileLog appends n entries to path, newest first, one hour apart
// and ending at pushdate end.
func (s *Server) SyntheticFileLog(repo, path string, n int, end int64) {
	entries := make([]map[string]any, 0, n)

	for i := range n {
		ts := end - int64(i)*3600
		entries = append(entries, map[string]any{
			"node":     fmt.Sprintf("%040x", i+1),
			"desc":     fmt.Sprintf("Bug %d - change %d r=rev%d", 100000+i, i, i%3),
			"user":     fmt.Sprintf("Dev %d <dev%d@example.com>", i%5, i%5),
			"date":     []any{ts, 0},
			"pushdate": []any{ts, 0},
		})
	}

	s.AddFileLog(repo, path, entries...)
}
