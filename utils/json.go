package utils

import (
	"encoding/json"
)

func MarshalToJSON[T any](input T) (string, error) {
	result, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}
