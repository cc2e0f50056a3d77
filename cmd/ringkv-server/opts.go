package main

var opts struct {
	Node struct {
		Addr         string `long:"addr" env:"ADDR" required:"true" description:"ipv4 address and port the node is reachable at"`
		Introducer   string `long:"introducer" env:"INTRODUCER" description:"address of the node to join (defaults to self, which starts a new group)"`
		TickInterval int    `long:"tick-interval" env:"TICK_INTERVAL" default:"100" description:"duration of a tick (ms)"`
	} `group:"node" namespace:"node" env-namespace:"NODE"`

	Transport struct {
		Kind      string `long:"kind" env:"KIND" default:"udp" choice:"udp" choice:"grpc" description:"message transport"`
		BindAddr  string `long:"bind-addr" env:"BIND_ADDR" default:"0.0.0.0" description:"address to bind the transport to, the port is taken from the node address"`
		QueueSize int    `long:"queue-size" env:"QUEUE_SIZE" default:"10000" description:"max number of inbound messages buffered between ticks"`
	} `group:"transport" namespace:"transport" env-namespace:"TRANSPORT"`

	Cluster struct {
		TFail          int64 `long:"t-fail" env:"T_FAIL" default:"5" description:"ticks of silence after which a peer is no longer gossiped about"`
		TRemove        int64 `long:"t-remove" env:"T_REMOVE" default:"20" description:"ticks of silence after which a peer is removed"`
		JoinRetries    int   `long:"join-retries" env:"JOIN_RETRIES" default:"5" description:"number of join request retries"`
		JoinBackoff    int64 `long:"join-backoff" env:"JOIN_BACKOFF" default:"5" description:"ticks to wait before the first join retry"`
		JoinMaxBackoff int64 `long:"join-max-backoff" env:"JOIN_MAX_BACKOFF" default:"40" description:"max ticks between join retries"`
	} `group:"cluster" namespace:"cluster" env-namespace:"CLUSTER"`

	Replication struct {
		Level   string `long:"level" env:"LEVEL" default:"quorum" description:"consistency level of client requests"`
		Timeout int64  `long:"timeout" env:"TIMEOUT" default:"10" description:"ticks to wait for replica replies"`
		GCDelay int64  `long:"gc-delay" env:"GC_DELAY" default:"40" description:"ticks of ring stability before unowned keys are dropped (0 disables)"`
	} `group:"replication" namespace:"replication" env-namespace:"REPLICATION"`

	RestAPI struct {
		BindAddr string `long:"bind-addr" env:"BIND_ADDR" default:":8000" description:"address to bind the http api to"`
		Timeout  int    `long:"timeout" env:"TIMEOUT" default:"5000" description:"max duration of an api request (ms)"`
	} `group:"api" namespace:"api" env-namespace:"API"`

	Verbose bool `long:"verbose" env:"VERBOSE" description:"verbose mode"`
}
