package schema

import _ "embed"

// CyclerV1Schema contains the JSON schema for cycler configuration files.
//
//go:embed cycler.v1.json
var CyclerV1Schema []byte
