// Command hashkey prints the bcrypt hash of an admin key for ADMIN_KEY_HASH.
//
//	go run ./cmd/hashkey -key 'my secret'
//	echo -n 'my secret' | go run ./cmd/hashkey
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/psg2/level-30-birthday/pkg/utils"
)

func main() {
	key := flag.String("key", "", "admin key to hash (read from stdin when empty)")
	flag.Parse()

	secret := *key
	if secret == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "hashkey: no key given")
			os.Exit(2)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "hashkey: empty key")
		os.Exit(2)
	}

	hash, err := utils.HashSecret(secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashkey:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
