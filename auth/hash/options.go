// Copyright 2026 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hash

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Options holds the hash parameters of an account file, as given on the command line. Keys
// and salt separators are base64 encoded.
type Options struct {
	Algorithm       string
	Key             string
	SaltSeparator   string
	Rounds          int
	MemoryCost      int
	Parallelization int
	BlockSize       int
	DerivedKeyLen   int
	InputOrder      string
}

// ValidateOptions checks the options against the rules of the selected algorithm, and returns
// the corresponding hash configuration.
//
// Algorithm names are case-insensitive. When no algorithm is specified ValidateOptions returns
// an empty Config: such an import cannot carry password hashes.
func ValidateOptions(opts Options) (Config, error) {
	h, err := opts.hash()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return Config{}, nil
	}
	conf, err := h.Config()
	if err != nil {
		return nil, fmt.Errorf("invalid options for hash algorithm %s: %w", opts.Algorithm, err)
	}

	order, err := parseInputOrder(opts.InputOrder)
	if err != nil {
		return nil, err
	}
	order.apply(conf)
	return conf, nil
}

func (opts Options) hash() (Hash, error) {
	alg := strings.ToUpper(strings.TrimSpace(opts.Algorithm))
	switch alg {
	case "":
		return nil, nil
	case "HMAC_SHA512", "HMAC_SHA256", "HMAC_SHA1", "HMAC_MD5":
		key, err := decodeKey(opts.Key, alg)
		if err != nil {
			return nil, err
		}
		switch alg {
		case "HMAC_SHA512":
			return HMACSHA512{Key: key}, nil
		case "HMAC_SHA256":
			return HMACSHA256{Key: key}, nil
		case "HMAC_SHA1":
			return HMACSHA1{Key: key}, nil
		default:
			return HMACMD5{Key: key}, nil
		}
	case "MD5":
		return MD5{Rounds: opts.Rounds}, nil
	case "SHA1":
		return SHA1{Rounds: opts.Rounds}, nil
	case "SHA256":
		return SHA256{Rounds: opts.Rounds}, nil
	case "SHA512":
		return SHA512{Rounds: opts.Rounds}, nil
	case "PBKDF_SHA1":
		return PBKDFSHA1{Rounds: opts.Rounds}, nil
	case "PBKDF2_SHA256":
		return PBKDF2SHA256{Rounds: opts.Rounds}, nil
	case "SCRYPT":
		key, err := decodeKey(opts.Key, alg)
		if err != nil {
			return nil, err
		}
		sep, err := decodeBase64(opts.SaltSeparator)
		if err != nil {
			return nil, fmt.Errorf("salt separator must be base64 encoded: %w", err)
		}
		return Scrypt{
			Key:           key,
			SaltSeparator: sep,
			Rounds:        opts.Rounds,
			MemoryCost:    opts.MemoryCost,
		}, nil
	case "BCRYPT":
		return Bcrypt{}, nil
	case "STANDARD_SCRYPT":
		return StandardScrypt{
			MemoryCost:       opts.MemoryCost,
			Parallelization:  opts.Parallelization,
			BlockSize:        opts.BlockSize,
			DerivedKeyLength: opts.DerivedKeyLen,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %s", opts.Algorithm)
	}
}

func parseInputOrder(s string) (InputOrderType, error) {
	switch strings.ToUpper(s) {
	case "":
		return InputOrderUnspecified, nil
	case "SALT_FIRST":
		return InputOrderSaltFirst, nil
	case "PASSWORD_FIRST":
		return InputOrderPasswordFirst, nil
	default:
		return InputOrderUnspecified, fmt.Errorf("unknown password hash order %q", s)
	}
}

func decodeKey(s, alg string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("must provide hash key (base64 encoded) for hash algorithm %s", alg)
	}
	key, err := decodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("hash key must be base64 encoded: %w", err)
	}
	return key, nil
}

// decodeBase64 accepts standard and web-safe base64, with or without padding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
