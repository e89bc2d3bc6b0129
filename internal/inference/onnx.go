/*
   NTVbot - News Truthfulness Verification bot
   Copyright (C) 2025  Unbewohnte (Kasyanov Nikolay Alexeevich)

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package inference

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	// Path to the onnxruntime shared library. Empty means the platform default.
	LibraryPath  string
	InputName    string
	OutputName   string
	MaxSeqLength int
}

var ortInit sync.Mutex

// NewONNXLoader returns a SessionLoader backed by onnxruntime.
func NewONNXLoader(conf ONNXConfig) SessionLoader {
	return func(path string) (Session, error) {
		if err := initRuntime(conf.LibraryPath); err != nil {
			return nil, err
		}

		session, err := ort.NewDynamicAdvancedSession(
			path,
			[]string{conf.InputName},
			[]string{conf.OutputName},
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("create onnx session: %w", err)
		}

		return &onnxSession{
			session:   session,
			seqLength: int64(conf.MaxSeqLength),
		}, nil
	}
}

func initRuntime(libraryPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}

	return nil
}

type onnxSession struct {
	session   *ort.DynamicAdvancedSession
	seqLength int64
}

func (s *onnxSession) Run(_ context.Context, inputIDs []int64) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(1, s.seqLength), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	// nil outputs are allocated by onnxruntime with the shape the model reports
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	data := tensor.GetData()
	scores := make([]float32, len(data))
	copy(scores, data)

	return scores, nil
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
