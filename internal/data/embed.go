package data

import _ "embed"

//go:embed echoes.yaml
var defaultEchoList []byte
