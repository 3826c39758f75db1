package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manningwu07/recurrent/layer"
	"github.com/manningwu07/recurrent/recurrent"
)

// headPath is where the readout layer lives next to a cell checkpoint:
// models/recurrent.gob -> models/recurrent.head.gob
func headPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".head" + ext
}

// epochPath names a periodic checkpoint: models/recurrent.epoch20.gob
func epochPath(path string, epoch int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.epoch%d%s", strings.TrimSuffix(path, ext), epoch, ext)
}

func saveModel(cell *recurrent.Cell, head layer.Layer, path string, f recurrent.Format) error {
	if err := cell.SaveFile(path, f); err != nil {
		return fmt.Errorf("save cell: %w", err)
	}
	d, err := layer.Encode(head)
	if err != nil {
		return fmt.Errorf("save head: %w", err)
	}
	var raw []byte
	switch f {
	case recurrent.FormatProto:
		raw = layer.AppendWire(nil, d)
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(d); err != nil {
			return fmt.Errorf("save head: %w", err)
		}
		raw = buf.Bytes()
	}
	return os.WriteFile(headPath(path), raw, 0o644)
}

// resolveFormat returns the -format value when one was given and otherwise
// the format implied by path's extension.
func resolveFormat(flagValue, path string) (recurrent.Format, error) {
	if flagValue == "" {
		return recurrent.FormatFor(path), nil
	}
	return recurrent.ParseFormat(flagValue)
}

// loadModel reads a checkpoint written by saveModel in the same format.
func loadModel(path string, f recurrent.Format) (*recurrent.Cell, layer.Layer, error) {
	cell, err := recurrent.LoadFile(path, f)
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(headPath(path))
	if err != nil {
		return nil, nil, err
	}
	var d layer.Data
	if f == recurrent.FormatProto {
		d, err = layer.ParseWire(raw)
	} else {
		err = gob.NewDecoder(bytes.NewReader(raw)).Decode(&d)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load head: %w", err)
	}
	head, err := layer.Decode(d)
	if err != nil {
		return nil, nil, fmt.Errorf("load head: %w", err)
	}
	return cell, head, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
