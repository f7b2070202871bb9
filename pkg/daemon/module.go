/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"context"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Module is a long running part of the daemon.
type Module interface {
	Name() string
	Run(ctx context.Context) error
}

// RunModules starts all modules and blocks until ctx is cancelled or one of
// them fails.
func RunModules(ctx context.Context, log logr.Logger, modules ...Module) error {
	if len(modules) == 0 {
		log.Info("No modules configured")
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range modules {
		g.Go(func() error {
			log.Info("starting module", "module", m.Name())
			return m.Run(ctx)
		})
	}
	return g.Wait()
}
