/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/easel-team/easel/api/types"
)

// anonymousAnimals names anonymous users deterministically from their user
// ID so a reconnecting client keeps its name.
var anonymousAnimals = []string{
	"Alpaca", "Badger", "Capybara", "Dingo", "Echidna", "Ferret",
	"Gecko", "Heron", "Ibex", "Jackal", "Koala", "Lemur",
	"Marmot", "Narwhal", "Ocelot", "Pangolin", "Quokka", "Raccoon",
	"Stoat", "Tapir", "Urchin", "Vole", "Wombat", "Yak",
}

// avatarPalette is the fixed set of presence colors shared with the client
// renderer.
var avatarPalette = []string{
	"#F94144", "#F3722C", "#F8961E", "#F9C74F",
	"#90BE6D", "#43AA8B", "#4D908E", "#577590",
	"#277DA1", "#9B5DE5", "#F15BB5", "#00BBF9",
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// AnonymousName derives the deterministic "Anonymous <Animal>" display name
// for the given user ID.
func AnonymousName(userID string) string {
	return "Anonymous " + anonymousAnimals[hashString(userID)%uint32(len(anonymousAnimals))]
}

// AvatarColor derives the palette color for the given user ID.
func AvatarColor(userID string) string {
	return avatarPalette[hashString(userID)%uint32(len(avatarPalette))]
}

// ResolveIdentity builds the session identity of a connection. The user ID
// precedence is fixed: verified token subject, then the client-provided ID,
// then a fresh UUID. The display name falls back to the deterministic
// anonymous name; the avatar color is always derived from the user ID.
func ResolveIdentity(verifiedSubject, clientID, displayName string, isAnonymous bool) types.UserIdentity {
	userID := verifiedSubject
	if userID == "" {
		userID = clientID
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	if displayName == "" {
		displayName = AnonymousName(userID)
	}

	return types.UserIdentity{
		UserID:      userID,
		DisplayName: displayName,
		IsAnonymous: verifiedSubject == "" || isAnonymous,
		AvatarColor: AvatarColor(userID),
	}
}
