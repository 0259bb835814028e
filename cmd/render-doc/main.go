// render-doc：离线生成渲染端文档（调试文档模板或交给原生外壳直接加载）
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/portal"
)

type options struct {
	seed      string
	mode      string
	lat, lng  float64
	timeout   time.Duration
	loaderURL string
	session   string
	gen       uint64
	asJSON    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "render-doc",
		Short: "Render a portal map document to stdout",
		Long: `Renders the live-map or diagnostic document for a portal seed file.
Only proxy credential mode is supported: the document references the host's
loader endpoint and never contains the map provider key.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.seed, "seed", "", "portal seed JSON file (defaults to the built-in seed)")
	f.StringVar(&o.mode, "mode", "live", "document mode: live or diagnostic")
	f.Float64Var(&o.lat, "lat", math.NaN(), "user latitude")
	f.Float64Var(&o.lng, "lng", math.NaN(), "user longitude")
	f.DurationVar(&o.timeout, "timeout", document.DefaultTimeout, "in-document load timeout")
	f.StringVar(&o.loaderURL, "loader-url", "/provider/loader.js", "provider loader URL (proxy endpoint)")
	f.StringVar(&o.session, "session", "offline", "session id stamped into the document")
	f.Uint64Var(&o.gen, "gen", 1, "generation stamped into the document")
	f.BoolVar(&o.asJSON, "json", false, "print the document with its metadata as JSON")
	return cmd
}

func run(cmd *cobra.Command, o *options, out io.Writer) error {
	var mode document.Mode
	if err := mode.UnmarshalText([]byte(o.mode)); err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(o.loaderURL), "key=") {
		return fmt.Errorf("refusing to embed a provider credential in the document; point --loader-url at the host proxy")
	}

	seed := portal.Seed()
	if o.seed != "" {
		s, err := portal.LoadSeedFile(o.seed)
		if err != nil {
			return err
		}
		seed = s
	}
	reg, err := portal.NewRegistry(seed)
	if err != nil {
		return err
	}
	latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
	if latSet != lngSet {
		return fmt.Errorf("--lat and --lng must be given together")
	}
	if latSet {
		if err := reg.SetUserLocation(portal.LatLng{Latitude: o.lat, Longitude: o.lng}); err != nil {
			return err
		}
	}

	doc, err := document.Generate(reg.Snapshot(), mode, document.Options{
		Session:        o.session,
		Generation:     o.gen,
		BridgeBase:     "/bridge/" + o.session,
		CredentialMode: document.CredentialProxy,
		ProxyLoaderURL: o.loaderURL,
		Timeout:        o.timeout,
	})
	if err != nil {
		return err
	}
	if len(doc.Omitted) > 0 {
		logger.L().Warn("markers_omitted", "ids", doc.Omitted)
	}
	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	_, err = io.WriteString(out, doc.HTML)
	return err
}

func main() {
	_ = godotenv.Load(".env")
	logger.Setup(os.Getenv("LOG_LEVEL"), "text")
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
