// Command keygen generates API keys for the gateway.
//
// Usage:
//
//	keygen [-prefix sk_live]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vektralab/embedgate/internal/gateway/keystore"
)

func main() {
	prefix := flag.String("prefix", "sk_live", "key prefix (e.g. sk_live, sk_test)")
	flag.Parse()

	key, err := keystore.Generate(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Generated new API key:")
	fmt.Printf("  Key:    %s\n", key)
	fmt.Printf("  Prefix: %s\n", *prefix)
	fmt.Println()
	fmt.Println("Use it in requests:")
	fmt.Printf("  Authorization: Bearer %s\n", key)
}
