package mongodriver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectOptions describes how to reach the store.
type ConnectOptions struct {
	// Host is a host[:port] list (comma separated) or a full mongodb://
	// or mongodb+srv:// URI.
	Host     string
	User     string
	Password string
	Database string

	// Options holds driver options. Known keys are applied to the client,
	// any other key is passed on as a connection string option.
	Options map[string]any
}

// driverOptions are the driver options understood by name.
type driverOptions struct {
	AppName                string        `mapstructure:"app_name"`
	ReplicaSet             string        `mapstructure:"replica_set"`
	AuthSource             string        `mapstructure:"auth_source"`
	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
	MinPoolSize            uint64        `mapstructure:"min_pool_size"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	DirectConnection       *bool         `mapstructure:"direct_connection"`
}

// Conn is a handle on one database of a MongoDB deployment.
type Conn struct {
	db     *mongo.Database
	client *mongo.Client
}

// NewConn wraps an already connected client.
func NewConn(client *mongo.Client, dbName string) *Conn {
	return &Conn{
		db:     client.Database(dbName),
		client: client,
	}
}

// Connect opens a client for opts and pings the deployment, so an
// unreachable or misconfigured store fails here rather than on first use.
func Connect(ctx context.Context, opts ConnectOptions) (*Conn, error) {
	if opts.Database == "" {
		return nil, fmt.Errorf("mongodriver: database name is required")
	}

	copts, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(copts)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongodriver: ping: %w", err)
	}

	return NewConn(client, opts.Database), nil
}

// clientOptions builds the driver client options for opts.
func clientOptions(opts ConnectOptions) (*options.ClientOptions, error) {
	var do driverOptions
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &do,
	})
	if err != nil {
		return nil, fmt.Errorf("mongodriver: options: %w", err)
	}
	if err := dec.Decode(opts.Options); err != nil {
		return nil, fmt.Errorf("mongodriver: options: %w", err)
	}

	extra := url.Values{}
	for _, k := range md.Unused {
		extra.Set(k, fmt.Sprint(opts.Options[k]))
	}
	if do.AuthSource != "" {
		extra.Set("authSource", do.AuthSource)
	}

	uri, err := connectionURI(opts, extra)
	if err != nil {
		return nil, err
	}

	co := options.Client().ApplyURI(uri)
	if do.AppName != "" {
		co.SetAppName(do.AppName)
	}
	if do.ReplicaSet != "" {
		co.SetReplicaSet(do.ReplicaSet)
	}
	if do.MaxPoolSize != 0 {
		co.SetMaxPoolSize(do.MaxPoolSize)
	}
	if do.MinPoolSize != 0 {
		co.SetMinPoolSize(do.MinPoolSize)
	}
	if do.ConnectTimeout != 0 {
		co.SetConnectTimeout(do.ConnectTimeout)
	}
	if do.ServerSelectionTimeout != 0 {
		co.SetServerSelectionTimeout(do.ServerSelectionTimeout)
	}
	if do.DirectConnection != nil {
		co.SetDirect(*do.DirectConnection)
	}
	return co, nil
}

// connectionURI renders mongodb://[user[:password]@]host/?extra. A host that
// already is a URI only gets the extra options and credentials added.
func connectionURI(opts ConnectOptions, extra url.Values) (string, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return "", fmt.Errorf("mongodriver: host is required")
	}

	if !strings.HasPrefix(host, "mongodb://") && !strings.HasPrefix(host, "mongodb+srv://") {
		host = "mongodb://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("mongodriver: invalid host %q: %w", opts.Host, err)
	}

	if opts.User != "" {
		if opts.Password != "" {
			u.User = url.UserPassword(opts.User, opts.Password)
		} else {
			u.User = url.User(opts.User)
		}
	}

	if u.Path == "" {
		u.Path = "/"
	}

	if len(extra) != 0 {
		q := u.Query()
		for k, v := range extra {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Database returns the database name.
func (c *Conn) Database() string {
	return c.db.Name()
}

// Close disconnects the client.
func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
