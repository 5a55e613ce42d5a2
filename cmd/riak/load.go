package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"

	"github.com/riakpb/riakpb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (a *app) loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [bucket] [file.csv]",
		Short: "Store every row of a CSV file as a JSON object",
		Long: `Store every row of a CSV file as a JSON object.

The first line holds the column names. Each row becomes an object mapping
column name to field, stored under the value of the key column (the
first column unless --key-column is given). A file of - reads stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			keyColumn, _ := flags.GetString("key-column")
			concurrency, _ := flags.GetInt("concurrency")
			encoding, _ := flags.GetString("encoding")

			in := cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			n, err := a.loadCSV(cmd.Context(), args[0], in, loadOptions{
				keyColumn:   keyColumn,
				concurrency: concurrency,
				encoding:    encoding,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored %d objects in %s\n", n, args[0])
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("key-column", "", wrap("Column holding the object key. Defaults to the first column"))
	flags.Int("concurrency", 4, wrap("Rows stored in parallel"))
	flags.String("encoding", "", wrap("Content encoding applied before storing (gzip, deflate, zstd, lz4)"))
	return cmd
}

type loadOptions struct {
	keyColumn   string
	concurrency int
	encoding    string
}

// loadCSV stores the rows of r and returns how many were stored. Rows are
// read in order and stored concurrently; the first failure stops the load.
func (a *app) loadCSV(ctx context.Context, bucketName string, r io.Reader, opts loadOptions) (int64, error) {
	bucket, err := a.client.Bucket(bucketName)
	if err != nil {
		return 0, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("empty csv, want a header line")
		}
		return 0, err
	}

	keyIndex := 0
	if opts.keyColumn != "" {
		keyIndex = slices.Index(header, opts.keyColumn)
		if keyIndex < 0 {
			return 0, fmt.Errorf("no column %q in header %v", opts.keyColumn, header)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))

	var stored atomic.Int64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = g.Wait()
			return stored.Load(), err
		}
		if gctx.Err() != nil {
			break
		}

		value := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				value[name] = record[i]
			}
		}
		name := record[keyIndex]
		if name == "" {
			_ = g.Wait()
			return stored.Load(), fmt.Errorf("line %d: empty key", line)
		}

		g.Go(func() error {
			content := riakpb.NewContent(riakpb.ContentTypeJSON, value)
			content.ContentEncoding = opts.encoding
			if _, err := bucket.Put(gctx, name, content, riakpb.SaveOptions{}); err != nil {
				return fmt.Errorf("storing %s/%s: %w", bucketName, name, err)
			}
			stored.Add(1)
			a.logger.Info("stored", zap.String("bucket", bucketName), zap.String("key", name))
			return nil
		})
	}

	err = g.Wait()
	return stored.Load(), err
}
