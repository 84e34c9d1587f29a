package journal

// Package journal records task activations so restarts don't lose run
// history.
//
// It currently supports:
//   - Run appends (one record per task activation)
//   - Recent-run queries (startup summary, debugging)
