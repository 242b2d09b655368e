package concierge_test

import (
	"context"
	"fmt"
	"log"

	"github.com/atelierlabs/concierge"
)

// ExampleNewInProcess demonstrates the single-worker assembly: no Redis, no
// model, deterministic keyword routing only. Asking for a late-stage action
// on a fresh session hits the workflow gate instead of executing.
func ExampleNewInProcess() {
	svc, err := concierge.NewInProcess()
	if err != nil {
		log.Fatal(err)
	}

	reply := svc.Router().HandleMessage(context.Background(), "demo", "run the risk model")

	fmt.Println(reply.Kind)
	fmt.Println(reply.Stage)
	fmt.Println(len(reply.Options))
	// Output:
	// gate_fork
	// no_data
	// 2
}
