package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"rewardnet/crypto"
	"rewardnet/crypto/merkle"
)

// reward-cli is an offline companion for campaign operators: it turns a list
// of eligible addresses into the membership root a task commits to, and
// produces the inclusion proof a participant submits with rewards_claim.

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "root":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a member list file.")
			printUsage()
			return
		}
		printRoot(args[1])
	case "proof":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a member list file and an address.")
			printUsage()
			return
		}
		printProof(args[1], args[2])
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  reward-cli root <members-file>             Print the membership root for a member list")
	fmt.Println("  reward-cli proof <members-file> <address>  Print the inclusion proof for one member")
	fmt.Println()
	fmt.Println("The members file holds one bech32 address per line. Blank lines and")
	fmt.Println("lines starting with '#' are ignored.")
}

func printRoot(path string) {
	tree, _, err := buildTree(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	root := tree.Root()
	fmt.Printf("members: %d\n", tree.Len())
	fmt.Printf("root:    %s\n", hex.EncodeToString(root[:]))
}

func printProof(path, addrStr string) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(addrStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid address: %v\n", err)
		os.Exit(1)
	}
	tree, index, err := buildTree(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	leaf := merkle.LeafHash(addr.Bytes())
	pos, ok := index[leaf]
	if !ok {
		fmt.Fprintf(os.Stderr, "address %s is not in the member list\n", addrStr)
		os.Exit(1)
	}
	proof, err := tree.Proof(pos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proof: %v\n", err)
		os.Exit(1)
	}
	root := tree.Root()
	fmt.Printf("root:  %s\n", hex.EncodeToString(root[:]))
	fmt.Printf("index: %d\n", pos)
	for _, node := range proof {
		fmt.Println(hex.EncodeToString(node[:]))
	}
}

// buildTree reads the member list, hashes each address into a leaf and builds
// the canonical sorted tree. The returned index maps leaf hashes to their
// position in the sorted order.
func buildTree(path string) (*merkle.Tree, map[[32]byte]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open member list: %w", err)
	}
	defer file.Close()

	leaves := make([][32]byte, 0)
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		addr, err := crypto.DecodeAddress(text)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid address %q: %w", line, text, err)
		}
		leaves = append(leaves, merkle.LeafHash(addr.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read member list: %w", err)
	}
	if len(leaves) == 0 {
		return nil, nil, fmt.Errorf("member list is empty")
	}

	merkle.SortLeaves(leaves)
	index := make(map[[32]byte]int, len(leaves))
	for i, leaf := range leaves {
		index[leaf] = i
	}

	tree, err := merkle.NewTree(leaves, merkle.DefaultOddNodePolicy)
	if err != nil {
		return nil, nil, err
	}
	return tree, index, nil
}
