package gravtree

// walkSerial drives the threaded pre-order walk: no stack, just
// first_child/next_sibling, terminating at ROOT_SIBLING.
func (t *Tree) walkSerial(pc ParticleContainer) error {
	splitter := t.splitterForSplit()
	splitter.Bind(pc)

	interaction := t.newInteraction()
	interaction.Bind(pc)

	for interaction.Advance() {
		splitter.Focus(interaction.Current())

		index := t.root

		for index != RootSibling {
			n := t.at(index)

			if n.Flags&Leaf != 0 {
				interaction.Interact(n)
				index = n.NextSibling

				continue
			}

			if splitter.Split(n) {
				index = n.FirstChild
			} else {
				interaction.Interact(n)
				index = n.NextSibling
			}
		}
	}

	return nil
}
