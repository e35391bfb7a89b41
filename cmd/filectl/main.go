package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ruteri/storage-adapter/cmd/flags"
	"github.com/ruteri/storage-adapter/httpserver"
	"github.com/urfave/cli/v2"
)

var flagServerAddr = &cli.StringFlag{
	Name:  "server",
	Usage: "files API address, e.g. http://127.0.0.1:8080. When empty the storage flags are used directly",
}
var flagID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "public file id returned by upload",
}
var flagInput = &cli.StringFlag{
	Name:  "in",
	Value: "-",
	Usage: "file to upload, '-' for stdin",
}
var flagOutput = &cli.StringFlag{
	Name:  "out",
	Value: "-",
	Usage: "where to write downloaded content, '-' for stdout",
}
var flagContentType = &cli.StringFlag{
	Name:  "content-type",
	Usage: "content type to record, inferred from the filename when empty",
}
var flagMeta = &cli.StringSliceFlag{
	Name:  "meta",
	Usage: "metadata to store with the object as key=value, repeatable",
}

const usage string = `Upload, inspect and remove files either through a running server or
directly against a storage backend.`

func main() {
	globalFlags := append([]cli.Flag{flagServerAddr}, flags.StorageFlags...)
	globalFlags = append(globalFlags, flags.LogFlags...)

	app := &cli.App{
		Name:  "filectl",
		Usage: usage,
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "store a new file",
				ArgsUsage: "<resource-id> <filename>",
				Flags:     []cli.Flag{flagInput, flagContentType, flagMeta},
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return fmt.Errorf("expected <resource-id> <filename>")
					}
					return withStore(cCtx, func(s fileStore) error {
						in, closeIn, err := openInput(cCtx.String(flagInput.Name))
						if err != nil {
							return err
						}
						defer closeIn()

						meta, err := parseMeta(cCtx.StringSlice(flagMeta.Name))
						if err != nil {
							return err
						}
						desc, err := s.Upload(cCtx.Context, in, cCtx.Args().Get(0), cCtx.Args().Get(1), cCtx.String(flagContentType.Name), meta)
						if err != nil {
							return fmt.Errorf("upload failed: %w", err)
						}
						return printJSON(desc)
					})
				},
			},
			{
				Name:  "upload-version",
				Usage: "store a new version of an existing file",
				Flags: []cli.Flag{flagID, flagInput, flagContentType, flagMeta},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						in, closeIn, err := openInput(cCtx.String(flagInput.Name))
						if err != nil {
							return err
						}
						defer closeIn()

						meta, err := parseMeta(cCtx.StringSlice(flagMeta.Name))
						if err != nil {
							return err
						}
						desc, err := s.UploadVersion(cCtx.Context, cCtx.String(flagID.Name), in, cCtx.String(flagContentType.Name), meta)
						if err != nil {
							return fmt.Errorf("upload failed: %w", err)
						}
						return printJSON(desc)
					})
				},
			},
			{
				Name:  "get",
				Usage: "download the latest version",
				Flags: []cli.Flag{flagID, flagOutput},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						data, err := s.Download(cCtx.Context, cCtx.String(flagID.Name))
						if err != nil {
							return fmt.Errorf("download failed: %w", err)
						}
						if out := cCtx.String(flagOutput.Name); out != "-" {
							return os.WriteFile(out, data, 0o644)
						}
						_, err = os.Stdout.Write(data)
						return err
					})
				},
			},
			{
				Name:  "meta",
				Usage: "describe the latest version",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						desc, err := s.Describe(cCtx.Context, cCtx.String(flagID.Name))
						if err != nil {
							return err
						}
						return printJSON(desc)
					})
				},
			},
			{
				Name:  "versions",
				Usage: "list every version, oldest first",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						descs, err := s.Versions(cCtx.Context, cCtx.String(flagID.Name))
						if err != nil {
							return err
						}
						return printJSON(descs)
					})
				},
			},
			{
				Name:  "delete",
				Usage: "remove every version of a file",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						return s.Delete(cCtx.Context, cCtx.String(flagID.Name))
					})
				},
			},
			{
				Name:  "handles",
				Usage: "report whether an id belongs to the configured adapter",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(s fileStore) error {
						ok, err := s.Handles(cCtx.Context, cCtx.String(flagID.Name))
						if err != nil {
							return err
						}
						fmt.Println(ok)
						return nil
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withStore runs fn against the remote server when --server is set and
// against a locally built adapter otherwise.
func withStore(cCtx *cli.Context, fn func(fileStore) error) error {
	if addr := cCtx.String(flagServerAddr.Name); addr != "" {
		return fn(httpserver.NewClient(addr))
	}

	logger := flags.SetupLogger(cCtx)
	a, err := flags.BuildAdapter(cCtx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(&localStore{adapter: a})
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		meta[k] = v
	}
	return meta, nil
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
