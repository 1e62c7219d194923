package imagestore

import "fmt"

// FactoryOptions select and configure a Store backend.
type FactoryOptions struct {
	// Provider is "minio" or "localfs".
	Provider string
	// LocalRoot is the artifact directory for the localfs provider.
	LocalRoot string
	// PublicBaseURL is the base for public artifact URLs with the localfs
	// provider.
	PublicBaseURL string

	Minio MinioOptions
}

// NewProvider builds the configured Store. localfs exists for development
// and tests; production runs on MinIO.
func NewProvider(opts FactoryOptions) (Store, error) {
	switch opts.Provider {
	case "", "minio":
		return NewMinio(opts.Minio)
	case "localfs":
		if opts.LocalRoot == "" {
			return nil, fmt.Errorf("localfs provider requires a root directory")
		}
		return NewLocalFS(opts.LocalRoot, opts.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", opts.Provider)
	}
}
