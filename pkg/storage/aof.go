package storage

import (
	"bufio"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// logRecord is one line of the append-only log.
type logRecord struct {
	Op           string                 `json:"op"`
	Instructions map[string]interface{} `json:"instructions"`
}

// appendAOF writes one line per pending operation record to the log file.
func (e *Engine) appendAOF(records []logRecord) error {
	if len(records) == 0 {
		return nil
	}

	file, err := os.OpenFile(e.aofPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open AOF: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode AOF record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append to AOF: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush AOF: %w", err)
	}
	return nil
}

// replayAOF re-applies the logged operations against the resident store.
// Failures on individual lines are logged and skipped; they never abort the
// load. Replayed operations are not re-appended.
func (e *Engine) replayAOF() error {
	file, err := os.Open(e.aofPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open AOF: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record logRecord
		if err := json.Unmarshal(line, &record); err != nil {
			e.logger.Warn("skipping malformed AOF line",
				zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if err := e.applyRecord(record); err != nil {
			e.logger.Warn("skipping failed AOF replay",
				zap.Int("line", lineNo), zap.String("op", record.Op), zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read AOF: %w", err)
	}

	// Replayed state is durable in the log already; nothing is pending.
	e.pending = nil
	e.dirty = make(map[string]bool)
	return nil
}

// Replay instruction shapes. Partition selectors were normalized to literal
// names when the record was written; functions do not survive serialization.
type createInstr struct {
	Collection string                 `mapstructure:"collection"`
	Index      string                 `mapstructure:"index"`
	Data       map[string]interface{} `mapstructure:"data"`
}

type createManyInstr struct {
	Collection string                   `mapstructure:"collection"`
	Index      string                   `mapstructure:"index"`
	Data       []map[string]interface{} `mapstructure:"data"`
}

type updateInstr struct {
	Collection string                 `mapstructure:"collection"`
	ID         int64                  `mapstructure:"_id"`
	Data       map[string]interface{} `mapstructure:"data"`
	Index      string                 `mapstructure:"index"`
}

type destroyInstr struct {
	Collection string `mapstructure:"collection"`
	ID         int64  `mapstructure:"_id"`
}

type dropCollectionInstr struct {
	Collection string `mapstructure:"collection"`
}

type dropIndexInstr struct {
	Collection string `mapstructure:"collection"`
	Index      string `mapstructure:"index"`
}

type rewriteInstr struct {
	Collection string `mapstructure:"collection"`
	Index      string `mapstructure:"index"`
}

type ensureIndexInstr struct {
	Collection string `mapstructure:"collection"`
	Field      string `mapstructure:"field"`
}

func decodeInstr(raw map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.ErrValidation{Reason: "malformed instructions: " + err.Error()}
	}
	return nil
}

func selectorFromName(name string) domain.PartitionSelector {
	if name == "" {
		return nil
	}
	return domain.Literal(name)
}

// applyRecord dispatches one replayed operation. Unknown operation names are
// a validation failure, isolated like any other replay error.
func (e *Engine) applyRecord(record logRecord) error {
	switch record.Op {
	case "create":
		var instr createInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		_, err := e.create(CreateArgs{
			Collection: instr.Collection,
			Index:      selectorFromName(instr.Index),
			Data:       instr.Data,
		}, false)
		return err
	case "createMany":
		var instr createManyInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		data := make([]domain.Document, len(instr.Data))
		for i, d := range instr.Data {
			data[i] = d
		}
		_, err := e.createMany(CreateManyArgs{
			Collection: instr.Collection,
			Index:      selectorFromName(instr.Index),
			Data:       data,
		}, false)
		return err
	case "update":
		var instr updateInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		_, err := e.update(UpdateArgs{
			Collection: instr.Collection,
			ID:         instr.ID,
			Data:       instr.Data,
			Index:      selectorFromName(instr.Index),
		}, false)
		return err
	case "destroy":
		var instr destroyInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		_, err := e.destroy(DestroyArgs{Collection: instr.Collection, ID: instr.ID}, false)
		return err
	case "dropCollection":
		var instr dropCollectionInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		return e.dropCollection(instr.Collection, false)
	case "dropIndex":
		var instr dropIndexInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		return e.dropIndex(instr.Collection, instr.Index, false)
	case "rewriteCollection":
		var instr rewriteInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		return e.rewriteCollection(RewriteArgs{
			Collection: instr.Collection,
			Index:      selectorFromName(instr.Index),
		}, false)
	case "ensureIndex":
		var instr ensureIndexInstr
		if err := decodeInstr(record.Instructions, &instr); err != nil {
			return err
		}
		return e.ensureIndex(instr.Collection, instr.Field, false)
	default:
		return domain.ErrValidation{Reason: "unknown operation " + record.Op}
	}
}

// compact writes the full current database through the normal save path and
// removes the log.
func (e *Engine) compact() error {
	if e.mode == ModeSingleFile {
		if err := e.saveDatabase(); err != nil {
			return err
		}
	} else {
		for name, c := range e.collections {
			switch e.mode {
			case ModeFolder:
				if err := e.writeJSONFile(e.collectionPath(name), encodeCollection(c)); err != nil {
					return err
				}
			case ModeSharded:
				if err := e.writeJSONFile(e.metaPath(name), encodeMeta(c)); err != nil {
					return err
				}
				for partition, docs := range c.Partitions {
					if err := e.writeJSONFile(e.shardPath(name, partition), docs); err != nil {
						return err
					}
				}
			}
		}
	}

	e.dirty = make(map[string]bool)
	if err := os.Remove(e.aofPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove AOF: %w", err)
	}
	e.logger.Info("compacted append-only log")
	return nil
}
