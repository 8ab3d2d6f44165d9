package utils

import (
	"strconv"

	"github.com/buger/jsonparser"
)

func JsonExtract(json []byte, key string) (string, error) {
	value, _, _, err := jsonparser.Get(json, key)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func JsonExtractStringOrDefault(json []byte, key string, def string) string {
	value, _, _, err := jsonparser.Get(json, key)
	if err != nil {
		return def
	}
	return string(value)
}

func JsonExtractIntOrDefault(json []byte, key string, def int) int {
	value, _, _, err := jsonparser.Get(json, key)
	if err != nil {
		return def
	}
	i, err := strconv.Atoi(string(value))
	if err != nil {
		return def
	}
	return i
}
