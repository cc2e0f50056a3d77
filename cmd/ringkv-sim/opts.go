package main

var opts struct {
	Nodes    int     `long:"nodes" default:"10" description:"number of nodes"`
	Keys     int     `long:"keys" default:"100" description:"number of keys created"`
	Fail     int     `long:"fail" default:"1" description:"number of nodes crashed after the keys are created"`
	DropRate float64 `long:"drop-rate" default:"0" description:"probability of a message being lost"`
	DupRate  float64 `long:"dup-rate" default:"0" description:"probability of a message being delivered twice"`
	Seed     int64   `long:"seed" default:"1" description:"seed of the network and the workload"`
	Ticks    int     `long:"ticks" default:"0" description:"extra ticks to run after the workload"`
	Verbose  bool    `long:"verbose" description:"log every protocol event"`
}
