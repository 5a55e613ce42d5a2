package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/riakpb/riakpb"
	"github.com/riakpb/riakpb/mapreduce"
	"github.com/spf13/cobra"
)

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of riak",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "riak v%s\n", Version)
		},
	}
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a node answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := a.client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pong in %v\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the node name, server version and client id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			info, err := a.client.ServerInfo(ctx)
			if err != nil {
				return err
			}
			id, err := a.client.ClientID(ctx)
			if err != nil {
				return err
			}

			view := struct {
				Node          string `json:"node" yaml:"node"`
				ServerVersion string `json:"server_version" yaml:"server_version"`
				ClientID      string `json:"client_id" yaml:"client_id"`
			}{info.Node, info.ServerVersion, id}
			return a.render(view, func() string {
				return fmt.Sprintf("node: %s\nserver version: %s\nclient id: %s", view.Node, view.ServerVersion, view.ClientID)
			})
		},
	}
}

func (a *app) bucketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List the buckets holding objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buckets, err := a.client.ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(buckets, func() string { return strings.Join(buckets, "\n") })
		},
	}
}

func (a *app) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys [bucket]",
		Short: "List every key of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.client.ListKeys(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(keys, func() string { return strings.Join(keys, "\n") })
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [bucket] [key]",
		Short: "Fetch an object and print its contents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _ := cmd.Flags().GetUint32("r")
			key, err := a.client.Get(cmd.Context(), args[0], args[1], riakpb.GetOptions{R: r})
			if err != nil {
				return err
			}
			if !key.Found() {
				return fmt.Errorf("%s/%s not found", args[0], args[1])
			}
			view := newKeyView(key)
			return a.render(view, view.text)
		},
	}
	cmd.Flags().Uint32("r", 0, wrap("Read quorum. Zero lets the node decide"))
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [bucket] [key] [value]",
		Short: "Store a value. A value of - is read from stdin",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			value, err := readValue(cmd.InOrStdin(), args[2])
			if err != nil {
				return err
			}

			contentType, _ := flags.GetString("content-type")
			content := riakpb.NewContent(contentType, value)
			content.ContentEncoding, _ = flags.GetString("encoding")
			content.Charset, _ = flags.GetString("charset")

			meta, _ := flags.GetStringToString("meta")
			if len(meta) > 0 {
				content.UserMeta = meta
			}
			links, _ := flags.GetStringArray("link")
			for _, s := range links {
				l, err := parseLink(s)
				if err != nil {
					return err
				}
				content.AddLink(l)
			}

			opts := riakpb.SaveOptions{}
			opts.W, _ = flags.GetUint32("w")
			opts.DW, _ = flags.GetUint32("dw")

			key, err := a.put(cmd.Context(), args[0], args[1], content, opts)
			if err != nil {
				return err
			}
			view := newKeyView(key)
			return a.render(view, func() string {
				if key.State() == riakpb.Conflicted {
					return fmt.Sprintf("stored %s/%s with %d siblings", view.Bucket, view.Key, len(view.Siblings))
				}
				return fmt.Sprintf("stored %s/%s", view.Bucket, view.Key)
			})
		},
	}
	flags := cmd.Flags()
	flags.String("content-type", riakpb.ContentTypeText, wrap("Content type of the value"))
	flags.String("encoding", "", wrap("Content encoding applied before storing (gzip, deflate, zstd, lz4)"))
	flags.String("charset", "", wrap("Charset of the value"))
	flags.StringToString("meta", nil, wrap("User metadata as key=value pairs"))
	flags.StringArray("link", nil, wrap("Link to another object as bucket/key[/tag]. Can be repeated"))
	flags.Uint32("w", 0, wrap("Write quorum. Zero lets the node decide"))
	flags.Uint32("dw", 0, wrap("Durable write quorum. Zero lets the node decide"))
	return cmd
}

// put stores content on top of the key's current version so the write
// carries its vector clock and resolves any siblings.
func (a *app) put(ctx context.Context, bucket, name string, content *riakpb.Content, opts riakpb.SaveOptions) (*riakpb.Key, error) {
	key, err := a.client.Get(ctx, bucket, name, riakpb.GetOptions{})
	if err != nil {
		return nil, err
	}
	opts.Content = content
	if err := key.Save(ctx, opts); err != nil {
		return nil, err
	}
	return key, nil
}

func (a *app) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete [bucket] [key]",
		Aliases: []string{"del"},
		Short:   "Delete an object",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rw, _ := cmd.Flags().GetUint32("rw")
			if err := a.client.Delete(cmd.Context(), args[0], args[1], riakpb.DeleteOptions{RW: rw}); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().Uint32("rw", 0, wrap("Delete quorum. Zero lets the node decide"))
	return cmd
}

type propsView struct {
	Bucket    string  `json:"bucket" yaml:"bucket"`
	NVal      *uint32 `json:"n_val,omitempty" yaml:"n_val,omitempty"`
	AllowMult *bool   `json:"allow_mult,omitempty" yaml:"allow_mult,omitempty"`
}

func (v propsView) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bucket: %s", v.Bucket)
	if v.NVal != nil {
		fmt.Fprintf(&b, "\nn_val: %d", *v.NVal)
	}
	if v.AllowMult != nil {
		fmt.Fprintf(&b, "\nallow_mult: %t", *v.AllowMult)
	}
	return b.String()
}

func (a *app) propsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "props [bucket]",
		Short: "Show the properties of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := a.client.GetBucketProps(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view := propsView{Bucket: args[0], NVal: props.NVal, AllowMult: props.AllowMult}
			return a.render(view, view.text)
		},
	}
}

func (a *app) setPropsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-props [bucket]",
		Short: "Change the properties of a bucket. Only the given flags are sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var props riakpb.BucketProps
			if flags.Changed("n-val") {
				n, _ := flags.GetUint32("n-val")
				props.NVal = &n
			}
			if flags.Changed("allow-mult") {
				allow, _ := flags.GetBool("allow-mult")
				props.AllowMult = &allow
			}
			if props.NVal == nil && props.AllowMult == nil {
				return fmt.Errorf("nothing to set, pass --n-val or --allow-mult")
			}
			if err := a.client.SetBucketProps(cmd.Context(), args[0], props); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "updated %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().Uint32("n-val", 0, wrap("Number of replicas of each object"))
	cmd.Flags().Bool("allow-mult", false, wrap("Keep concurrent writes as siblings"))
	return cmd
}

func (a *app) mapredCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapred [job.jsonc]",
		Short: "Run a map-reduce job from a JSONC file (- for stdin) or from flags",
		Long: `Run a map-reduce job.

With a file argument the job is read as JSON with comments. Without one,
the job runs over --bucket with the --map and --reduce phases in order:
named built-ins such as Riak.mapValuesJson, or JavaScript source. The
last phase keeps its results.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.jobBody(cmd, args)
			if err != nil {
				return err
			}
			results, err := mapreduce.RunJSON(cmd.Context(), a.client, body)
			if err != nil {
				return err
			}

			view := make([]map[string]any, 0, len(results))
			for _, r := range results {
				values, err := mapreduce.Decode[any](r)
				if err != nil {
					return err
				}
				view = append(view, map[string]any{"phase": r.Phase, "values": values})
			}
			return a.render(view, func() string {
				var b strings.Builder
				for i, r := range view {
					if i > 0 {
						b.WriteString("\n")
					}
					fmt.Fprintf(&b, "phase %d: %s", r["phase"], formatValue(r["values"]))
				}
				return b.String()
			})
		},
	}
	flags := cmd.Flags()
	flags.String("bucket", "", wrap("Run over every key of this bucket"))
	flags.StringArray("map", nil, wrap("Map phase function. Can be repeated"))
	flags.StringArray("reduce", nil, wrap("Reduce phase function. Can be repeated, runs after the map phases"))
	flags.Duration("job-timeout", 0, wrap("Timeout of the job on the node"))
	return cmd
}

func (a *app) jobBody(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		if args[0] != "-" {
			return mapreduce.ReadFile(args[0])
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		return mapreduce.ParseJSONC(data)
	}

	flags := cmd.Flags()
	bucket, _ := flags.GetString("bucket")
	maps, _ := flags.GetStringArray("map")
	reduces, _ := flags.GetStringArray("reduce")
	timeout, _ := flags.GetDuration("job-timeout")
	if bucket == "" {
		return nil, fmt.Errorf("pass a job file or --bucket")
	}

	job := mapreduce.New().AddBucket(bucket).Timeout(timeout)
	last := len(maps) + len(reduces) - 1
	for i, fn := range maps {
		job.Map(mapreduce.JS(fn), keepIf(i == last))
	}
	for i, fn := range reduces {
		job.Reduce(mapreduce.JS(fn), keepIf(len(maps)+i == last))
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job.MarshalJSON()
}

func keepIf(keep bool) mapreduce.PhaseOption {
	if keep {
		return mapreduce.Keep()
	}
	return func(*mapreduce.Phase) {}
}

func readValue(stdin io.Reader, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(stdin)
}
