// Command ledgerctl keeps a learner's progress ledger on the local machine
// and synchronises it with the progress server.
package main

import "github.com/teens-space/progress-hub/cmd/ledgerctl/root"

func main() {
	root.Execute()
}
