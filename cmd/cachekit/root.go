package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"

	"github.com/unkn0wn-root/cachekit"
	"github.com/unkn0wn-root/cachekit/config"
	logruslog "github.com/unkn0wn-root/cachekit/log/logrus"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cachekit",
		Short:        "Inspect and edit a cachekit cache",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("engine", "", "engine name, overrides the config")
	root.PersistentFlags().String("storage-key", "", "namespace prefix, overrides the config")

	root.AddCommand(
		getCmd(), setCmd(), delCmd(), expireCmd(), ttlCmd(), flushCmd(),
		addCmd(), removeCmd(),
	)
	return root
}

// open builds a service for the command from config plus flag overrides.
func open[V any](cmd *cobra.Command) (*cachekit.Service[V], error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine = v
	}
	if v, _ := cmd.Flags().GetString("storage-key"); v != "" {
		cfg.StorageKey = v
	}
	l := config.NewLogger(cfg.Log)
	l.SetOutput(cmd.ErrOrStderr())
	return cachekit.New[V](cmd.Context(), cachekit.Options[V]{
		Config: cfg,
		Logger: logruslog.New(l),
	})
}

func parseTTL(s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ttl %q", s)
	}
	return d, nil
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the JSON value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			v, ok := s.Lookup(cmd.Context(), args[0])
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(miss)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	var ttl string
	c := &cobra.Command{
		Use:   "set KEY JSON",
		Short: "Store a JSON value under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return errors.Newf("value is not valid JSON: %s", args[1])
			}
			var d time.Duration
			if ttl != "" {
				var err error
				if d, err = parseTTL(ttl); err != nil {
					return err
				}
			}
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return s.Set(cmd.Context(), args[0], json.RawMessage(args[1]), d)
		},
	}
	c.Flags().StringVar(&ttl, "ttl", "", "expiry such as 90s, 15m or 1d2h; empty keeps the entry forever")
	return c
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del KEY",
		Short: "Delete KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return s.Del(cmd.Context(), args[0])
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire KEY TTL",
		Short: "Change the expiry of KEY; 0 makes it persistent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseTTL(args[1])
			if err != nil {
				return err
			}
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return s.Expire(cmd.Context(), args[0], d)
		},
	}
}

func ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl KEY",
		Short: "Print when KEY expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			ts, ok := s.CacheTimestamp(cmd.Context(), args[0])
			if !ok {
				ts = "(none)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), ts)
			return nil
		},
	}
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush [NEEDLE]",
		Short: "Delete keys starting with NEEDLE, or the whole namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var needle string
			if len(args) == 1 {
				needle = args[0]
			}
			s, err := open[json.RawMessage](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return s.Flush(cmd.Context(), needle)
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add KEY VALUE...",
		Short: "Append values to the string list under KEY",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open[[]string](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return cachekit.Add(cmd.Context(), s, args[0], args[1:]...)
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove KEY VALUE...",
		Short: "Remove values from the string list under KEY",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open[[]string](cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return cachekit.Remove(cmd.Context(), s, args[0], args[1:]...)
		},
	}
}
