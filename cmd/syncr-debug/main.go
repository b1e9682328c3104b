// Command syncr-debug exposes the checksum engine and match index as
// standalone CLI subcommands, for inspecting what a real session would
// compute without running one.
package main

import (
	"fmt"
	"hash"
	"os"

	sha256simd "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/aalekhpatel07/syncr/matchindex"
	"github.com/aalekhpatel07/syncr/strongchecksum"
	"github.com/aalekhpatel07/syncr/weakchecksum"
)

// strongHashConstructor resolves the --strong-hash flag to a hash.Hash
// constructor. md4 is the only wire-compatible choice for a real session;
// sha256simd is offered here for local benchmarking and debugging only.
func strongHashConstructor(name string) (func() hash.Hash, error) {
	switch name {
	case "", "md4":
		return nil, nil // nil means: let strongchecksum.New's MD4 default stand.
	case "sha256simd":
		return sha256simd.New, nil
	default:
		return nil, errors.Errorf("unknown --strong-hash %q (want md4 or sha256simd)", name)
	}
}

func main() {
	var (
		blockSize  int
		modulus    int
		strong     bool
		strongHash string
	)

	checksumCmd := &cobra.Command{
		Use:   "checksum <files...>",
		Short: "Print weak or strong non-overlapping checksums for each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.ChecksumConfig{BlockSize: blockSize, Modulus: uint32(modulus)}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctor, err := strongHashConstructor(strongHash)
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := printChecksums(path, cfg, strong, ctor); err != nil {
					return errors.Wrapf(err, "checksumming %q", path)
				}
			}
			return nil
		},
	}
	checksumCmd.Flags().IntVar(&blockSize, "block-size", config.DefaultBlockSize, "block size")
	checksumCmd.Flags().IntVar(&modulus, "modulus", config.DefaultModulus, "weak checksum modulus")
	checksumCmd.Flags().BoolVar(&strong, "strong", false, "print strong checksums instead of weak checksums")
	checksumCmd.Flags().StringVar(&strongHash, "strong-hash", "md4", "strong hash to use with --strong: md4 (wire-compatible) or sha256simd (debug only)")

	diffCmd := &cobra.Command{
		Use:   "diff <updater-file> <source-file>",
		Short: "Print matched (updater_offset, source_offset) pairs between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.ChecksumConfig{BlockSize: blockSize, Modulus: uint32(modulus)}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return diff(args[0], args[1], cfg)
		},
	}
	diffCmd.Flags().IntVar(&blockSize, "block-size", config.DefaultBlockSize, "block size")
	diffCmd.Flags().IntVar(&modulus, "modulus", config.DefaultModulus, "weak checksum modulus")

	root := &cobra.Command{Use: "syncr-debug"}
	root.AddCommand(checksumCmd, diffCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printChecksums(path string, cfg config.ChecksumConfig, strong bool, hashCtor func() hash.Hash) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strong {
		hasher := strongchecksum.New(cfg)
		if hashCtor != nil {
			hasher = hasher.WithHash(hashCtor)
		}
		for _, h := range hasher.NonOverlapping(data) {
			fmt.Printf("%x\n", h)
		}
		return nil
	}

	for _, w := range weakchecksum.New(data, cfg).NonOverlapping() {
		fmt.Printf("%08x\n", w)
	}
	return nil
}

func diff(updaterPath, sourcePath string, cfg config.ChecksumConfig) error {
	updaterData, err := os.ReadFile(updaterPath)
	if err != nil {
		return errors.Wrapf(err, "reading %q", updaterPath)
	}
	sourceData, err := os.ReadFile(sourcePath)
	if err != nil {
		return errors.Wrapf(err, "reading %q", sourcePath)
	}

	weak := weakchecksum.New(updaterData, cfg).NonOverlapping()
	index := matchindex.New(cfg)
	index.Compile(weak)

	hasher := strongchecksum.New(cfg)
	rolling := weakchecksum.New(sourceData, cfg).Rolling()

	for sourceOffset, w := range rolling {
		candidates := index.Probe(w)
		if len(candidates) == 0 {
			continue
		}

		end := sourceOffset + cfg.BlockSize
		if end > len(sourceData) {
			end = len(sourceData)
		}
		sourceHash := hasher.Hash(sourceData[sourceOffset:end])

		for _, updaterOffset := range candidates {
			uEnd := updaterOffset + cfg.BlockSize
			if uEnd > len(updaterData) {
				uEnd = len(updaterData)
			}
			if sourceHash.Equal(hasher.Hash(updaterData[updaterOffset:uEnd])) {
				fmt.Printf("%d %d\n", updaterOffset, sourceOffset)
				break
			}
		}
	}
	return nil
}
