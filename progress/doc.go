// Package progress keeps the per-stage progress list of a bootstrap run.
//
// The package follows the handler/writer pattern of log/slog:
//
//   - Line: writes status messages for one stage (analogous to slog.Logger)
//   - Handler: receives and stores them (analogous to slog.Handler)
//
// Handler also implements bootstrap.Sink and bootstrap.ProgressSink, so it
// can be passed straight to the orchestrator:
//
//	h := progress.NewHandler(logger)
//	o := bootstrap.NewOrchestrator(client, bootstrap.WithSink(h))
//	...
//	for _, item := range h.All() {
//	    fmt.Printf("%-16s %-12s %d/%d\n", item.Name, item.Status, item.Done, item.Total)
//	}
package progress
