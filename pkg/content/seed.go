package content

import (
    "fmt"
    "os"
    "path/filepath"

    "github.com/google/uuid"
    "gopkg.in/yaml.v3"
)

// Seed is the startup content of a node, read from a YAML file:
//
//  text:
//    - id: 6f1c...        # optional, generated when empty
//      title: readme
//      body: hello
//  media:
//    - title: logo
//      mime: image/png
//      path: logo.png     # relative to the seed file; or inline "data"
type Seed struct {
    Text  []TextFile
    Media []MediaFile
}

type seedFile struct {
    Text []struct {
        ID    string `yaml:"id"`
        Title string `yaml:"title"`
        Body  string `yaml:"body"`
    } `yaml:"text"`
    Media []struct {
        ID    string `yaml:"id"`
        Title string `yaml:"title"`
        MIME  string `yaml:"mime"`
        Data  string `yaml:"data"`
        Path  string `yaml:"path"`
    } `yaml:"media"`
}

func seedID(raw string) (uuid.UUID, error) {
    if raw == "" { return uuid.New(), nil }
    return uuid.Parse(raw)
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (Seed, error) {
    b, err := os.ReadFile(path)
    if err != nil { return Seed{}, fmt.Errorf("read seed: %w", err) }
    var raw seedFile
    if err := yaml.Unmarshal(b, &raw); err != nil { return Seed{}, fmt.Errorf("parse seed %s: %w", path, err) }

    var s Seed
    for i, t := range raw.Text {
        id, err := seedID(t.ID)
        if err != nil { return Seed{}, fmt.Errorf("seed text[%d]: %w", i, err) }
        s.Text = append(s.Text, TextFile{ID: id, Title: t.Title, Body: t.Body})
    }
    base := filepath.Dir(path)
    for i, m := range raw.Media {
        id, err := seedID(m.ID)
        if err != nil { return Seed{}, fmt.Errorf("seed media[%d]: %w", i, err) }
        data := []byte(m.Data)
        if m.Path != "" {
            p := m.Path
            if !filepath.IsAbs(p) { p = filepath.Join(base, p) }
            data, err = os.ReadFile(p)
            if err != nil { return Seed{}, fmt.Errorf("seed media[%d]: %w", i, err) }
        }
        s.Media = append(s.Media, MediaFile{ID: id, Title: m.Title, MIME: m.MIME, Data: data})
    }
    return s, nil
}

// Fill inserts records into st and returns how many were added.
func Fill[R Record](st Store[R], records []R) (int, error) {
    n := 0
    for _, r := range records {
        if err := st.Insert(r); err != nil { return n, err }
        n++
    }
    return n, nil
}
