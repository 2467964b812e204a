/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package engine

import "fmt"

// ErrConnection represents errors that occur while establishing or using
// the engine connection.
type ErrConnection struct {
	Msg string
	Err error
}

// ErrQueryExecution represents errors returned by the engine for a statement.
type ErrQueryExecution struct {
	Msg string
	Err error
}

func (e *ErrConnection) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine connection error: %s", e.Msg)
	}
	return fmt.Sprintf("engine connection error: %s: %v", e.Msg, e.Err)
}

func (e *ErrConnection) Unwrap() error {
	return e.Err
}

func (e *ErrQueryExecution) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("query execution error: %s", e.Msg)
	}
	return fmt.Sprintf("query execution error: %s: %v", e.Msg, e.Err)
}

func (e *ErrQueryExecution) Unwrap() error {
	return e.Err
}
