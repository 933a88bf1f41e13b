// Package main hosts the upscan CLI entrypoint and command graph.
//
// Each invocation plays one page visit for a ticket's form: the draft saved
// by the previous run is loaded as the form's hidden fields, files passed to
// attach are uploaded through the intake service, and the resulting fields
// are saved back. Configuration resolution, logging setup and the form
// workspace are centralized here so subcommands only describe output.
package main
