package calibio

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
)

type pickedDocument struct {
	Objects []models.PickedObject `yaml:"objects"`
}

func saveYAML(path string, doc interface{}) error {
	return writeFile(path, func(w *bufio.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	})
}

func loadYAML(path string, doc interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return errkind.Wrapf(err, errkind.ParseFailure, "parsing %s", path)
	}
	return nil
}

// SavePointBuffers writes flattened correspondence buffers as YAML.
func SavePointBuffers(path string, buf models.PointBuffers) error {
	return saveYAML(path, buf)
}

// LoadPointBuffers reads buffers written by SavePointBuffers and checks that
// the counts match the point lists.
func LoadPointBuffers(path string) (models.PointBuffers, error) {
	var buf models.PointBuffers
	if err := loadYAML(path, &buf); err != nil {
		return models.PointBuffers{}, err
	}
	if buf.NumViews() == 0 {
		return models.PointBuffers{}, errkind.New(errkind.InputEmpty, "%s holds no views", path)
	}
	if _, err := buf.Views(); err != nil {
		return models.PointBuffers{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}
	return buf, nil
}

// SavePickedObjects writes picked points and polylines as YAML.
func SavePickedObjects(path string, objs []models.PickedObject) error {
	return saveYAML(path, pickedDocument{Objects: objs})
}

// LoadPickedObjects reads a picked-object file and validates every entry.
func LoadPickedObjects(path string) ([]models.PickedObject, error) {
	var doc pickedDocument
	if err := loadYAML(path, &doc); err != nil {
		return nil, err
	}
	for _, obj := range doc.Objects {
		if err := obj.Validate(); err != nil {
			return nil, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
		}
	}
	return doc.Objects, nil
}
