package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quartzrender/assetsync"
	"github.com/quartzrender/assetsync/internal/diskstore"
	"github.com/quartzrender/assetsync/internal/ocistore"
	"github.com/quartzrender/assetsync/internal/s3store"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <manifest-file>",
	Short: "Upload a manifest's content into a content-addressed store",
	Long: "Upload every blob the manifest references that the store does not\n" +
		"already hold, then the manifest itself. The destination is either an\n" +
		"explicit CAS URI (s3://bucket/prefix, oci://registry/repo, or a local\n" +
		"directory) or a farm/queue pair resolved through the config file.",
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().String("cas-uri", "", "destination store URI")
	uploadCmd.Flags().String("farm-id", "", "farm identifier (with --queue-id)")
	uploadCmd.Flags().String("queue-id", "", "queue identifier (with --farm-id)")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	uri, _ := cmd.Flags().GetString("cas-uri")
	if uri == "" {
		farmID, _ := cmd.Flags().GetString("farm-id")
		queueID, _ := cmd.Flags().GetString("queue-id")
		if farmID == "" || queueID == "" {
			return fmt.Errorf("either --cas-uri or both --farm-id and --queue-id are required")
		}
		resolved, err := assetsync.LocateRemote(cmd.Context(), farmID, queueID, configQueueResolver)
		if err != nil {
			return err
		}
		uri = resolved
	}

	store, err := openStore(cmd.Context(), uri)
	if err != nil {
		return err
	}

	report, warnings, err := assetsync.Upload(cmd.Context(), manifestPath, store, engineOptions()...)
	if err != nil {
		return err
	}

	if jsonMode(cmd) {
		out := struct {
			*assetsync.SyncReport
			Warning any `json:"warning,omitempty"`
		}{report, joinWarnings(warnings)}
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		printWarnings(warnings)
		fmt.Printf("Uploaded %d, already present %d, failed %d (%s transferred)\n",
			report.Uploaded, report.Present, report.Failed, humanize.Bytes(uint64(report.TotalBytes)))
		fmt.Printf("Manifest %s: %s\n", report.ManifestHash, report.ManifestStatus)
	}

	if !report.Ok() {
		return fmt.Errorf("upload incomplete: %d object(s) failed", report.Failed)
	}
	return nil
}

// configQueueResolver stands in for the farm directory service: queue
// destinations come from the config file, e.g.
//
//	farms:
//	  farm-1:
//	    queues:
//	      queue-1:
//	        cas_uri: s3://render-bucket/JobAssets
func configQueueResolver(_ context.Context, farmID, queueID string) (string, error) {
	key := fmt.Sprintf("farms.%s.queues.%s.cas_uri", farmID, queueID)
	uri := viper.GetString(key)
	if uri == "" {
		return "", fmt.Errorf("no cas_uri configured at %s", key)
	}
	return uri, nil
}

func openStore(ctx context.Context, uri string) (assetsync.BlobStore, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix, err := s3store.ParseURI(uri)
		if err != nil {
			return nil, err
		}
		var opts []s3store.Option
		if region := viper.GetString("s3.region"); region != "" {
			opts = append(opts, s3store.WithRegion(region))
		}
		if endpoint := viper.GetString("s3.endpoint"); endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(endpoint))
		}
		if access := viper.GetString("s3.access_key"); access != "" {
			opts = append(opts, s3store.WithStaticCredentials(access, viper.GetString("s3.secret_key")))
		}
		return s3store.New(ctx, bucket, prefix, opts...)
	case strings.HasPrefix(uri, "oci://"):
		repoRef, err := ocistore.ParseURI(uri)
		if err != nil {
			return nil, err
		}
		return ocistore.New(repoRef)
	default:
		return diskstore.New(uri, diskstore.WithCompression(viper.GetInt("disk.compression_level")))
	}
}
