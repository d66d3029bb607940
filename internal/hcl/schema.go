package hcl

// fileRoot decodes every top-level block a file may contain.
type fileRoot struct {
	Engine    *engineBlock `hcl:"engine,block"`
	Blocks    []*blockDef  `hcl:"block,block"`
	Notifiers []*notifyDef `hcl:"notify,block"`
}

type engineBlock struct {
	Sinks           []string `hcl:"sinks,optional"`
	QueueDepth      int      `hcl:"queue_depth,optional"`
	MaxSelection    int      `hcl:"max_selection,optional"`
	MaxBufferWords  int      `hcl:"max_buffer_words,optional"`
	CoredumpTimeout string   `hcl:"coredump_timeout,optional"`
	Magic           uint64   `hcl:"magic,optional"`
	Module          string   `hcl:"module,optional"`
}

type blockDef struct {
	Name        string      `hcl:"name,label"`
	BaseAddress uint64      `hcl:"base_address"`
	Length      uint64      `hcl:"length"`
	Ranges      []*rangeDef `hcl:"range,block"`
}

type rangeDef struct {
	Name     string `hcl:"name,label"`
	Start    uint64 `hcl:"start"`
	End      uint64 `hcl:"end"`
	ClientID uint32 `hcl:"client_id,optional"`
}

type notifyDef struct {
	Kind               string `hcl:"kind,label"`
	URL                string `hcl:"url,optional"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	Timeout            string `hcl:"timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
