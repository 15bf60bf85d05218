package protocol

import (
	"encoding/json"
	"fmt"
)

const CodecJSONName = "json"

func init() {
	RegisterCodec(CodecJSON{})
}

// CodecJSON is used for human readable dumps of control messages
type CodecJSON struct{}

func (c CodecJSON) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (c CodecJSON) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

func (c CodecJSON) Name() string {
	return CodecJSONName
}

// Dump renders msg with the json codec for debug logs
func Dump(msg *Message) string {
	data, err := GetCodec(CodecJSONName).Marshal(msg)
	if err != nil {
		return fmt.Sprintf("%v (%v)", msg, err)
	}
	return string(data)
}
