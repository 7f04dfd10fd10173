// Package triage embeds the issue-clustering engine in a Go program.
//
// The client runs the same pipeline as the triage server: each chat message is
// classified, embedded and either attached to an existing issue or opens a new one.
// Storage is SQLite for single-process use, or Valkey/Redis for shared state.
//
//	client, _ := triage.New(ctx, triage.WithSQLite("data/triage.db"))
//	defer client.Close()
//
//	msg, _ := client.Ingest(ctx, triage.Event{
//	    ExternalID: "1714564800.000200",
//	    Channel:    "C001",
//	    Author:     "U004",
//	    Text:       "login page crashes on submit",
//	})
//	if msg != nil {
//	    issue, _ := client.Issues().Get(ctx, msg.IssueID)
//	    fmt.Println(issue.Title, issue.Classification)
//	}
//
// Without WithEmbedder a local hashing embedder is used, and without
// WithClassifierCompleter messages are classified by keywords. Plug an LLM
// through the Completer interface to get model-backed classification and,
// with WithJudgeCompleter, follow-up detection and candidate disambiguation.
package triage
