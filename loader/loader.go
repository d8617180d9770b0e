// Package loader 从定义目录读取相关矩阵、模型与产品.
//
// 目录结构:
//
//	correlations.json|yaml      行优先展开的相关矩阵
//	<类型标签>_<任意>.json|yaml|yml  模型或产品定义，类型标签决定使用哪个注册表
package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wyfcoding/exposure/instrument"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/xerrors"
)

const correlationsBase = "correlations"

// Definitions 一次运行的全部输入定义.
type Definitions struct {
	// Models 按名称排序，随机变量顺序与 Correlations 一致.
	Models       []model.Model
	Instruments  []instrument.Instrument
	Correlations []float64
}

// ModelNames 模型名称.
func (d *Definitions) ModelNames() []string {
	names := make([]string, len(d.Models))
	for i, m := range d.Models {
		names[i] = m.Name()
	}
	return names
}

// InitModels 依次初始化模型.
func (d *Definitions) InitModels() error {
	for _, m := range d.Models {
		if err := m.Init(); err != nil {
			return xerrors.Wrap(err, xerrors.ErrInvalidArg, "init model "+m.Name())
		}
	}
	return nil
}

// Load 读取 dir 下的全部定义. 无法识别类型标签的文件被忽略.
func Load(dir string) (*Definitions, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrNotFound, "read definitions dir "+dir)
	}

	l := logging.Default().Tagged("loader")
	defs := &Definitions{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		base := strings.TrimSuffix(name, filepath.Ext(name))

		if base == correlationsBase {
			if err := decodeFile(path, &defs.Correlations); err != nil {
				return nil, err
			}
			l.Info("correlations loaded", "file", name, "entries", len(defs.Correlations))
			continue
		}

		tag, _, ok := strings.Cut(base, "_")
		if !ok {
			l.Debug("skipping file without type tag", "file", name)
			continue
		}

		if m, err := model.New(tag); err == nil {
			if err := decodeFile(path, m); err != nil {
				return nil, err
			}
			l.Info("model loaded", "file", name, "model", m.Name(), "type", m.Type())
			defs.Models = append(defs.Models, m)
			continue
		}

		inst, err := instrument.New(tag)
		if err != nil {
			l.Debug("skipping file with unknown type tag", "file", name, "tag", tag)
			continue
		}
		if err := decodeFile(path, inst); err != nil {
			return nil, err
		}
		if err := inst.Validate(); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrInvalidArg, "validate "+name)
		}
		l.Info("instrument loaded", "file", name, "instrument", inst.Name(), "type", inst.Type())
		defs.Instruments = append(defs.Instruments, inst)
	}

	model.SortByName(defs.Models)
	if err := checkCorrelations(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func checkCorrelations(defs *Definitions) error {
	n := 0
	for _, m := range defs.Models {
		n += m.NumberOfVariables()
	}
	if len(defs.Correlations) != n*n {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "correlations has %d entries, models need %dx%d", len(defs.Correlations), n, n)
	}
	return nil
}

// decodeFile .json 使用 encoding/json，其余按 YAML 解码.
func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrNotFound, "read "+path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, v)
	} else {
		err = yaml.Unmarshal(raw, v)
	}
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrInvalidArg, "decode "+path)
	}
	return nil
}
